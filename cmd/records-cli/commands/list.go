package commands

import (
	"log"
	"time"

	"municipalrecords-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listStatus *string
var listLimit *int64

func init() {
	listStatus = listCmd.Flags().String("status", "", "Only show requests in this status.")
	listLimit = listCmd.Flags().Int64("limit", 50, "Maximum number of rows.")
	rootCmd.AddCommand(listCmd)
}

func formatTime(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).In(timezone.Location).Format("2006-01-02 15:04")
}

var listCmd = &cobra.Command{
	Use:   "list [--status <status>] [--limit <n>]",
	Short: "Lists records requests, newest first.",
	Run: func(cmd *cobra.Command, args []string) {
		service := openService()

		rows, err := service.ListRequests(cmd.Context(), *listStatus, *listLimit)
		if err != nil {
			log.Fatal(err)
		}

		t := newTable()
		t.AppendHeader(table.Row{
			"ID", "Type", "Case", "Status", "Retries", "Confirmation", "Created",
		})
		for _, r := range rows {
			t.AppendRow(table.Row{
				r.ID, r.ReportType, r.CaseNumber, r.Status,
				r.RetryCount, r.Confirmation, formatTime(r.CreatedAt),
			})
		}
		t.Render()
	},
}
