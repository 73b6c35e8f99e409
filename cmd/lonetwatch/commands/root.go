package commands

import (
	"context"
	"fmt"
	"os"

	"lonetwatch/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose *bool

func init() {
	verbose = rootCmd.PersistentFlags().BoolP(
		"verbose", "v", false,
		"Enable debug logging and resty request dumps.",
	)
}

var rootCmd = &cobra.Command{
	Use:   "lonetwatch",
	Short: "lonetwatch watches a lo-net2 learning plan and announces new tasks on Discord.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
