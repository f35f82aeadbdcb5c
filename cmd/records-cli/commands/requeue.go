package commands

import (
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(requeueCmd)
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <request id>",
	Short: "Resets a failed request so the worker attempts it again.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			log.Fatal(err)
		}
		service := openService()

		if err := service.Requeue(cmd.Context(), id); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("request %d requeued\n", id)
	},
}
