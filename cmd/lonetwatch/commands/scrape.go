package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"lonetwatch/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var scrapeJson *bool

func init() {
	scrapeJson = scrapeCmd.Flags().Bool("json", false, "Dump the plan as JSON instead of a table.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--json]",
	Short: "Logs in, collects the learning plan once and prints it.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		collect, err := newCollect(cfg)
		if err != nil {
			serviceutil.Fatal("failed to load credentials", err)
		}

		t1 := time.Now()
		plan, err := collect(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to collect plan", err)
		}
		t2 := time.Now()

		if *scrapeJson {
			out, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				serviceutil.Fatal("failed to marshal plan", err)
			}
			fmt.Println(string(out))
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Subject", "Task", "Deadline", "Link"})

		for _, subject := range plan.Subjects {
			for _, task := range subject.Tasks {
				deadline := ""
				if !task.Deadline.IsZero() {
					deadline = task.Deadline.Format("02.01.2006 15:04")
				}
				t.AppendRow(table.Row{subject.Name, task.Name, deadline, task.Link})
			}
		}

		t.SetStyle(table.StyleRounded)
		t.Render()

		fmt.Printf("scraped in %.2fs\n", t2.Sub(t1).Seconds())
	},
}
