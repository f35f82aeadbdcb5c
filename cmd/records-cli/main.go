package main

import (
	"context"

	"municipalrecords-backend/cmd/records-cli/commands"
	"municipalrecords-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "records-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
