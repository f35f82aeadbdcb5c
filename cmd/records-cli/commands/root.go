package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"municipalrecords-backend/lib/serviceutil"
	"municipalrecords-backend/services/requests"
	"municipalrecords-backend/services/requests/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

var dbPath *string

var rootCmd = &cobra.Command{
	Use:   "records-cli",
	Short: "records-cli inspects and repairs records requests.",
}

func init() {
	dbPath = rootCmd.PersistentFlags().String("db", "requests.db", "The requests database to operate on.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openService() requests.Service {
	database, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	if _, err := database.Exec(db.Schema); err != nil {
		serviceutil.Fatal("failed to apply schema", err)
	}
	return requests.NewService(database)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
