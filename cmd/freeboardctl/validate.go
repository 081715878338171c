package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/plugins"
)

type validateCmd struct {
	Document string   `arg:"" type:"existingfile" help:"Dashboard document (JSON) to lint."`
	Manifest []string `type:"existingfile" help:"Extra plugin manifests to register (repeatable)."`
	Format   string   `enum:"text,json,yaml" default:"text" help:"Output format."`

	out io.Writer
}

func (cmd *validateCmd) Run(ctx context.Context, g *globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	reg, err := buildRegistry(append(cfg.Manifests, cmd.Manifest...))
	if err != nil {
		return err
	}

	f, err := os.Open(cmd.Document)
	if err != nil {
		return fmt.Errorf("freeboardctl: open document: %w", err)
	}
	defer f.Close()
	doc, err := freeboard.DecodeDocument(f)
	if err != nil {
		return err
	}

	var problems []freeboard.DocumentProblem
	sources := freeboard.NewManifestSourceLoader(reg, freeboard.NewCachingLoader(nil))
	for _, src := range doc.Plugins {
		if err := sources.LoadPluginSource(ctx, src); err != nil {
			problems = append(problems, freeboard.DocumentProblem{Path: "plugins(" + src + ")", Message: err.Error()})
		}
	}
	problems = append(problems, freeboard.CheckDocument(reg, nil, nil, doc)...)

	if err := cmd.report(problems); err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("freeboardctl: %d problem(s) in %s", len(problems), cmd.Document)
	}
	return nil
}

func (cmd *validateCmd) report(problems []freeboard.DocumentProblem) error {
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	switch cmd.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(problems)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(problems)
	}
	if len(problems) == 0 {
		fmt.Fprintf(out, "✓ %s is valid\n", cmd.Document)
		return nil
	}
	for _, p := range problems {
		fmt.Fprintf(out, "✗ %s\n", p)
	}
	return nil
}

func buildRegistry(manifests []string) (*freeboard.Registry, error) {
	reg := freeboard.NewRegistry()
	if err := plugins.Register(reg, plugins.Options{}); err != nil {
		return nil, err
	}
	for _, path := range manifests {
		if _, err := reg.LoadManifestFile(path); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
