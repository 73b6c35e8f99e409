package commands

import (
	"context"
	"log/slog"

	"lonetwatch/lib/discord"
	"lonetwatch/lib/serviceutil"
	"lonetwatch/lib/taskindex"
	"lonetwatch/lib/telemetry"
	"lonetwatch/services/notifier"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the watcher until interrupted, waiting for `lonet activate` on Discord.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()

		err := telemetry.SetupFromEnv(ctx, "lonetwatch")
		if err != nil {
			slog.Warn("telemetry disabled", "err", err)
		}
		defer telemetry.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		cfg := loadConfig()

		collect, err := newCollect(cfg)
		if err != nil {
			serviceutil.Fatal("failed to load credentials", err)
		}
		index, err := taskindex.Open(cfg.IndexFile)
		if err != nil {
			serviceutil.Fatal("failed to open task index", err)
		}
		slog.Info("task index loaded", "file", cfg.IndexFile, "tracked", index.Len())

		client := discord.NewClient(discord.ClientOptions{
			Token:            cfg.Token,
			InstrumentOutput: restyOutput(),
		})
		service := notifier.NewService(notifier.Options{
			Collect:   collect,
			Sender:    client,
			Index:     index,
			IndexFile: cfg.IndexFile,
			Interval:  cfg.interval(),
		})

		gateway := discord.NewGateway(cfg.Token)
		gateway.OnReady = func(user discord.User) {
			slog.Info("connected to Discord", "user", user.Username)
			slog.Info("remember to activate the bot (`lonet activate`)")
		}
		gateway.OnMessage = func(msg discord.Message) {
			if msg.Author.Bot {
				return
			}
			service.HandleMessage(ctx, msg)
		}

		gateway.Run(ctx)
	},
}
