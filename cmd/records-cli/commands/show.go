package commands

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <request id>",
	Short: "Shows one request and its full event history.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			log.Fatal(err)
		}
		service := openService()

		request, err := service.GetRequest(cmd.Context(), id)
		if err != nil {
			log.Fatal(err)
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"ID", request.ID},
			{"Report type", request.ReportType},
			{"Case number", request.CaseNumber},
			{"Requestor", strings.TrimSpace(fmt.Sprintf("%s %s", request.FirstName, request.LastName))},
			{"Email", request.Email},
			{"Status", request.Status},
			{"Payment ref", request.PaymentRef},
			{"Fee (cents)", request.AmountCents},
			{"Confirmation", request.Confirmation},
			{"Synthetic", request.SyntheticConfirmation == 1},
			{"Retries", request.RetryCount},
			{"Failure reason", request.FailureReason},
			{"Created", formatTime(request.CreatedAt)},
			{"Submitted", formatTime(request.SubmittedAt)},
			{"Completed", formatTime(request.CompletedAt)},
		})
		t.Render()

		events, err := service.ListEvents(cmd.Context(), id)
		if err != nil {
			log.Fatal(err)
		}

		et := newTable()
		et.AppendHeader(table.Row{"Time", "Action", "Details", "Error"})
		for _, e := range events {
			et.AppendRow(table.Row{
				formatTime(e.CreatedAt), e.Action, e.Details, e.IsError == 1,
			})
		}
		et.Render()
	},
}
