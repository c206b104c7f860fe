package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/tripnara/readiness/pkg/archive"
	"github.com/tripnara/readiness/pkg/engine"
	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/trip"
)

// runPacksCmd lists the capability packs that would be loaded from dir.
func runPacksCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("packs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", os.Getenv("READINESS_PACKS_DIR"), "extra capability pack directory")
	jsonOutput := fs.Bool("json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	reg, _, err := loadPacks(*dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reg.List()); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TYPE\tNAME\tRULES")
	for _, info := range reg.List() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", info.Type, info.DisplayName, info.RuleCount)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(stdout, "%s%d pack(s) loaded%s\n", ColorGray, reg.Len(), ColorReset)
	return 0
}

// runEvaluateCmd evaluates a trip context file without a server or stored trips.
func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tripFile := fs.String("trip", "", "trip context JSON file (REQUIRED)")
	packsDir := fs.String("packs", os.Getenv("READINESS_PACKS_DIR"), "extra capability pack directory")
	profilesDir := fs.String("profiles", os.Getenv("READINESS_PROFILES_DIR"), "destination profile directory")
	archiveDir := fs.String("archive-dir", "", "also store the report in this directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *tripFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --trip is required")
		return 2
	}

	data, err := os.ReadFile(*tripFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var tc trip.Context
	if err := json.Unmarshal(data, &tc); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse %s: %v\n", *tripFile, err)
		return 1
	}

	reg, ev, err := loadPacks(*packsDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	enrichers, err := loadEnrichers(*profilesDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	svc, err := engine.New(engine.Options{
		Repository: trip.NewMemoryRepository(),
		Packs:      reg,
		PackEngine: pack.NewEngine(ev),
		Enrichers:  enrichers,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = svc.Close() }()

	report, err := svc.EvaluateContext(context.Background(), tc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *archiveDir != "" {
		store, err := archive.NewFileStore(*archiveDir)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		ref, err := archive.NewReports(store).Put(context.Background(), report)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "report archived as %s\n", ref)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
