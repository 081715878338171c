package main

import (
	"context"

	"github.com/alecthomas/kong"
)

type globals struct {
	Config   string `short:"c" type:"path" help:"Config file (defaults to ./freeboard.yaml when present)."`
	LogLevel string `name:"log-level" help:"Override the configured log level."`
}

type cli struct {
	Globals globals `embed:""`

	Serve    serveCmd    `cmd:"" help:"Serve a dashboard over HTTP with a live WebSocket stream."`
	Validate validateCmd `cmd:"" help:"Lint a dashboard document against the registered plugins."`
	Types    typesCmd    `cmd:"" help:"List registered datasource and widget types."`
	Scaffold scaffoldCmd `cmd:"" help:"Add a plugin entry to a manifest file."`
}

func main() {
	var root cli
	ctx := kong.Parse(&root,
		kong.Description("Dashboard runtime and plugin tooling for freeboard documents."),
		kong.UsageOnError(),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
	)
	err := ctx.Run(&root.Globals)
	ctx.FatalIfErrorf(err)
}
