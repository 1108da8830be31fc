package preflight

import (
	"context"
	"strings"

	"postflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Staging directory", cfg.StagingDir()),
		CheckBrands(cfg),
		CheckCredential("HeyGen API key", cfg.HeyGen.APIKey),
		CheckCredential("Submagic API key", cfg.Submagic.APIKey),
		CheckCredential("Late API key", cfg.Late.APIKey),
		CheckStorage(cfg.Storage),
	}
	if strings.TrimSpace(cfg.Webhooks.PublicBaseURL) == "" {
		results = append(results, Result{Name: "Webhook base URL", Detail: "not set; providers cannot call back and records rely on the sweep"})
	} else {
		results = append(results, Result{Name: "Webhook base URL", Passed: true, Detail: cfg.Webhooks.PublicBaseURL})
	}
	if cfg.LLM.APIKey == "" {
		results = append(results, Result{Name: "Script writer", Passed: true, Detail: "disabled; article text is used as the script"})
	} else {
		results = append(results, Result{Name: "Script writer", Passed: true, Detail: cfg.LLM.Model})
	}
	if cfg.YouTube.Enabled {
		results = append(results, CheckCredential("YouTube refresh token", cfg.YouTube.RefreshToken))
	}
	if cfg.Scheduling.ClaimBackend == "redis" {
		results = append(results, CheckRedis(ctx, cfg.Redis.URL))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
