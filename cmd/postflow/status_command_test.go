package main

import (
	"strings"
	"testing"

	"postflow/internal/api"
	"postflow/internal/daemonctl"
	"postflow/internal/preflight"
)

func TestStatusOfflineReportsCountsAndPreflight(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "content", "add", "--brand", "carz", "--title", "Deal", "--body", "Body")
	mustRunCLI(t, env, "start", "--brand", "carz")

	out := mustRunCLI(t, env, "status")
	requireContains(t, out, "Not running")
	requireContains(t, out, "video_processing")
	requireContains(t, out, "Preflight")

	out = mustRunCLI(t, env, "--json", "status")
	var snap daemonctl.Snapshot
	decodeJSON(t, out, &snap)
	if snap.Running {
		t.Fatal("expected daemon to be reported as not running")
	}
	if snap.Counts["video_processing"] != 1 || snap.Counts["queued"] != 0 {
		t.Fatalf("unexpected counts: %v", snap.Counts)
	}
}

func TestRenderSnapshotShowsStageHealth(t *testing.T) {
	snap := &daemonctl.Snapshot{
		Running: true,
		Daemon: &api.DaemonStatus{
			Running: true,
			Address: "127.0.0.1:7490",
			Workflow: api.WorkflowStatus{StageHealth: []api.StageHealth{
				{Name: "relocation", Ready: false, Detail: "object storage not configured"},
				{Name: "synthesis", Ready: true},
			}},
		},
		Counts:    map[string]int{"failed": 2},
		Preflight: []preflight.Result{{Name: "Late", Passed: false, Detail: "late.api_key is not set"}},
	}
	out := renderSnapshot(snap, false)
	for _, want := range []string{
		"Running on 127.0.0.1:7490",
		"Stage relocation:",
		"[ERROR] object storage not configured",
		"Stage synthesis:",
		"[OK] Ready",
		"[ERROR] late.api_key is not set",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("expected no ANSI codes without colorize")
	}
}

func TestSweepReportsSummary(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRunCLI(t, env, "sweep")
	requireContains(t, out, "Processed 0")

	out = mustRunCLI(t, env, "--json", "sweep")
	var resp api.SweepResponse
	decodeJSON(t, out, &resp)
	if !resp.Success || resp.Processed != 0 {
		t.Fatalf("unexpected sweep response: %+v", resp)
	}
}
