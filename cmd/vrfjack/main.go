package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"V" help:"Show version"`
	Server   ServerCmd        `cmd:"" help:"Run the blackjack HTTP server"`
	Simulate SimulateCmd      `cmd:"" help:"Play simulated rounds against a local oracle"`
	Token    TokenCmd         `cmd:"" help:"Issue a bearer token for an account"`
	History  HistoryCmd       `cmd:"" help:"Show recorded rounds for an account"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("vrfjack"),
		kong.Description("Blackjack against a collateralised pool, dealt from verifiable random words"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
