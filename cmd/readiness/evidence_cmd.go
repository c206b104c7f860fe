package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/tripnara/readiness/pkg/evidence"
)

// runEvidenceCmd fetches simulated evidence for a list of targets, optionally
// printing progress while the task runs.
func runEvidenceCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evidence", flag.ContinueOnError)
	fs.SetOutput(stderr)
	targets := fs.String("targets", "", "comma-separated target ids (REQUIRED)")
	types := fs.String("types", "", "comma-separated evidence types (default all)")
	tripID := fs.String("trip", "", "trip id to attach to the task")
	latency := fs.Duration("latency", 0, "simulated latency per target")
	timeout := fs.Duration("timeout", 0, "task timeout (0 uses the default)")
	watch := fs.Bool("watch", false, "print progress until the task finishes")
	interval := fs.Duration("interval", evidence.DefaultWatchInterval, "progress interval for --watch")
	jsonOutput := fs.Bool("json", false, "output the final task as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *targets == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --targets is required")
		return 2
	}

	req := evidence.Request{
		TripID:    *tripID,
		TargetIDs: splitList(*targets),
		Async:     true,
		Timeout:   *timeout,
	}
	for _, t := range splitList(*types) {
		req.EvidenceTypes = append(req.EvidenceTypes, evidence.Type(t))
	}
	if len(req.EvidenceTypes) == 0 {
		req.EvidenceTypes = evidence.KnownTypes
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orch := evidence.NewOrchestrator(&evidence.SimulatedSource{Latency: *latency})
	defer func() { _ = orch.Close() }()

	task, err := orch.CreateTask(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *watch {
		for snap := range evidence.Watch(ctx, orch, task.TaskID, *interval) {
			_, _ = fmt.Fprintf(stderr, "%s%s %s %d/%d %s%s\n", ColorGray,
				snap.TaskID, snap.Status, snap.Progress.Processed, snap.Progress.Total,
				snap.Progress.Current, ColorReset)
		}
	}
	task, err = orch.Wait(ctx, task.TaskID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(task); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		printTaskSummary(stdout, task)
	}
	if task.Status != evidence.StatusCompleted {
		return 1
	}
	return 0
}

func printTaskSummary(w io.Writer, task evidence.Task) {
	color := ColorGreen
	if task.Status != evidence.StatusCompleted {
		color = ColorRed
	}
	_, _ = fmt.Fprintf(w, "%s%s%s %s\n", ColorBold+color, task.Status, ColorReset, task.TaskID)
	if task.Error != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", task.Error)
	}
	if task.Result == nil {
		return
	}
	r := task.Result
	_, _ = fmt.Fprintf(w, "  targets %d, success %d, partial %d, failed %d (coverage %.0f%%)\n",
		r.TotalTargets, r.SuccessCount, r.PartialCount, r.FailedCount, r.Coverage()*100)
	for _, item := range r.Items {
		_, _ = fmt.Fprintf(w, "  %-20s %s\n", item.TargetID, item.Status)
		for _, rec := range item.Records {
			_, _ = fmt.Fprintf(w, "    %-14s %s\n", rec.Type, rec.Summary)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
