package main

import (
	"github.com/alecthomas/kong"
	"github.com/arnavsurve/nsecorp/cmd/cli"
)

var CLI struct {
	Run    cli.RunCmd    `cmd:"" default:"withargs" help:"Download today's NSE corporate actions and load them into SQLite."`
	Lint   cli.LintCmd   `cmd:"" help:"Validate the config file and the selected driver."`
	Load   cli.LoadCmd   `cmd:"" help:"Load an existing corporate actions CSV into SQLite."`
	Export cli.ExportCmd `cmd:"" help:"Export the stored corporate actions to CSV."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("nsecorp"),
		kong.Description("Fetch NSE corporate actions with a browser and store them in SQLite."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
