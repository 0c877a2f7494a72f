package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wavemem/waverag/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if plainOutput() {
				fmt.Println(version.Version)
				return
			}
			fmt.Println(version.String())
		},
	}
}
