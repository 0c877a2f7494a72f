package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wavemem/waverag/internal/config"
	"github.com/wavemem/waverag/internal/tagmemo"
	"github.com/wavemem/waverag/internal/wave"
)

func newStatsCmd() *cobra.Command {
	var tagMatrixPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics for a persisted tag matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			engine := wave.New(cfg.Pipeline)
			if tagMatrixPath != "" {
				m, err := tagmemo.LoadFile(tagMatrixPath)
				if err != nil {
					return err
				}
				data, err := m.ToJSON()
				if err != nil {
					return err
				}
				if err := engine.LoadTagMatrixFromJSON(data); err != nil {
					return err
				}
			}

			stats := engine.GetStats()
			fmt.Printf("tags:         %d\n", stats.TagMemo.TagCount)
			fmt.Printf("pairs:        %d\n", stats.TagMemo.PairCount)
			fmt.Printf("updates:      %d\n", stats.TagMemo.TotalUpdates)
			fmt.Printf("alpha/beta:   %.2f/%.2f\n", stats.TagMemo.Alpha, stats.TagMemo.Beta)
			fmt.Printf("cooccur tags: %d (%d docs)\n", stats.CooccurTags, stats.CooccurDocs)
			return nil
		},
	}

	cmd.Flags().StringVar(&tagMatrixPath, "tag-matrix", "", "path to a TagMemo JSON snapshot")
	return cmd
}
