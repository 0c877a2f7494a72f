package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wavemem/waverag/internal/config"
	"github.com/wavemem/waverag/internal/fusion"
	"github.com/wavemem/waverag/internal/wave"
)

// searchInput is the offline request shape: pre-ranked streams plus
// query tags, as the host runtime would supply them.
type searchInput struct {
	QueryTags     []string                  `json:"query_tags"`
	BM25Results   []fusion.SearchResultItem `json:"bm25_results"`
	VectorResults []fusion.SearchResultItem `json:"vector_results"`
	TagMatrix     json.RawMessage           `json:"tag_matrix,omitempty"`
}

func newSearchCmd() *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the pipeline over a JSON request file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return err
			}
			var input searchInput
			if err := json.Unmarshal(data, &input); err != nil {
				return err
			}

			engine := wave.New(cfg.Pipeline)
			if len(input.TagMatrix) > 0 {
				if err := engine.LoadTagMatrixFromJSON(input.TagMatrix); err != nil {
					return err
				}
			}

			result := engine.Search(input.QueryTags, input.BM25Results, input.VectorResults, nil)

			if plainOutput() {
				out, err := json.Marshal(result)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("trace: %s (%.2fms)\n", result.TraceID, result.TotalMS)
			fmt.Printf("lens: %d tags  expansion: %d tags\n",
				len(result.Lens.TagsUsed), len(result.Expansion.TagsUsed))
			for i, r := range result.Results {
				fmt.Printf("%2d. %-20s %.6f  [%s]\n", i+1, r.ID, r.FinalScore, r.Source)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON request file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
