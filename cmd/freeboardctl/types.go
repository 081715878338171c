package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/queries"
)

type typesCmd struct {
	Kind     string   `enum:"all,datasource,widget" default:"all" help:"Plugin kind to list."`
	Format   string   `enum:"table,json,yaml" default:"table" help:"Output format."`
	Manifest []string `type:"existingfile" help:"Extra plugin manifests to register (repeatable)."`

	out io.Writer
}

func (cmd *typesCmd) Run(ctx context.Context, g *globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	reg, err := buildRegistry(append(cfg.Manifests, cmd.Manifest...))
	if err != nil {
		return err
	}
	input := queries.TypesInput{}
	if cmd.Kind != "all" {
		input.Kind = freeboard.PluginKind(cmd.Kind)
	}
	result, err := queries.NewTypesQuery(reg).Query(ctx, input)
	if err != nil {
		return err
	}

	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	switch cmd.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(result)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTYPE\tNAME")
	for _, t := range result.Datasources {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", freeboard.KindDatasource, t.Name, t.DisplayName)
	}
	for _, t := range result.Widgets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", freeboard.KindWidget, t.Name, t.DisplayName)
	}
	return tw.Flush()
}
