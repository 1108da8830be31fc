package logs

import (
	"encoding/json"
	"strconv"
	"strings"

	"postflow/internal/logging"
)

// Filter narrows log lines to one workflow record and/or component. The zero
// value matches every line.
type Filter struct {
	WorkflowID int64
	Component  string
	MinLevel   string
}

func (f Filter) empty() bool {
	return f.WorkflowID == 0 && f.Component == "" && f.MinLevel == ""
}

// Match reports whether line passes the filter. JSON lines are matched on
// their fields; console lines on the subject and component markers the
// console handler writes.
func (f Filter) Match(line string) bool {
	if f.empty() {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(trimmed), &entry); err == nil {
			return f.matchJSON(entry)
		}
	}
	return f.matchConsole(trimmed)
}

func (f Filter) matchJSON(entry map[string]any) bool {
	if f.WorkflowID != 0 {
		id, ok := entry[logging.FieldItemID].(float64)
		if !ok || int64(id) != f.WorkflowID {
			return false
		}
	}
	if f.Component != "" {
		component, _ := entry[logging.FieldComponent].(string)
		if !strings.EqualFold(component, f.Component) {
			return false
		}
	}
	if f.MinLevel != "" {
		level, _ := entry["level"].(string)
		if levelRank(level) < levelRank(f.MinLevel) {
			return false
		}
	}
	return true
}

func (f Filter) matchConsole(line string) bool {
	if f.WorkflowID != 0 {
		subject := "Workflow #" + strconv.FormatInt(f.WorkflowID, 10)
		idx := strings.Index(line, subject)
		if idx < 0 {
			return false
		}
		// Workflow #1 must not match Workflow #12.
		rest := line[idx+len(subject):]
		if rest != "" && rest[0] != ' ' {
			return false
		}
	}
	if f.Component != "" && !strings.Contains(strings.ToLower(line), "["+strings.ToLower(f.Component)+"]") {
		return false
	}
	if f.MinLevel != "" {
		fields := strings.Fields(line)
		if len(fields) < 2 || levelRank(fields[1]) < levelRank(f.MinLevel) {
			return false
		}
	}
	return true
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return -1
	}
}
