package logs_test

import (
	"testing"

	"postflow/internal/logs"
)

func TestFilterMatch(t *testing.T) {
	console := "2026-01-02T15:04:05Z WARN [captions] Workflow #12 (captions) - provider slow attempt=2"
	consoleOther := "2026-01-02T15:04:05Z INFO [synthesis] Workflow #1 - submitted"
	jsonLine := `{"time":"2026-01-02T15:04:05Z","level":"ERROR","msg":"post failed","component":"publishing","workflow_id":7}`

	cases := []struct {
		name   string
		filter logs.Filter
		line   string
		want   bool
	}{
		{"zero filter", logs.Filter{}, "anything", true},
		{"console workflow", logs.Filter{WorkflowID: 12}, console, true},
		{"console workflow prefix", logs.Filter{WorkflowID: 1}, console, false},
		{"console exact workflow", logs.Filter{WorkflowID: 1}, consoleOther, true},
		{"console component", logs.Filter{Component: "Captions"}, console, true},
		{"console wrong component", logs.Filter{Component: "synthesis"}, console, false},
		{"console level", logs.Filter{MinLevel: "warn"}, console, true},
		{"console below level", logs.Filter{MinLevel: "warn"}, consoleOther, false},
		{"json workflow", logs.Filter{WorkflowID: 7}, jsonLine, true},
		{"json wrong workflow", logs.Filter{WorkflowID: 8}, jsonLine, false},
		{"json component and level", logs.Filter{Component: "publishing", MinLevel: "error"}, jsonLine, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(tc.line); got != tc.want {
				t.Fatalf("Match(%q) = %v, want %v", tc.line, got, tc.want)
			}
		})
	}
}
