package daemonrun

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"postflow/internal/config"
	"postflow/internal/scheduling"
	"postflow/internal/testsupport"
)

func buildRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	rt, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestBuildRegistersEveryStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.AccessKey = "key"
	cfg.Storage.SecretKey = "secret"
	rt := buildRuntime(t, cfg)

	if _, ok := rt.Claimer.(*scheduling.SQLiteClaimer); !ok {
		t.Fatalf("expected sqlite claimer, got %T", rt.Claimer)
	}
	summary := rt.Manager.Status(context.Background())
	for _, name := range []string{"synthesis", "captions", "relocation", "scheduling", "publishing"} {
		health, ok := summary.StageHealth[name]
		if !ok {
			t.Fatalf("stage %s not registered: %v", name, summary.StageHealth)
		}
		if !health.Ready {
			t.Fatalf("stage %s not ready: %s", name, health.Detail)
		}
	}
}

func TestBuildWithoutStorageLeavesRelocationUnhealthy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.Bucket = ""
	rt := buildRuntime(t, cfg)

	health := rt.Manager.Status(context.Background()).StageHealth["relocation"]
	if health.Ready {
		t.Fatal("expected relocation to report unhealthy without a bucket")
	}
}

func TestBuildUsesRedisClaimer(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testsupport.NewConfig(t)
	cfg.Scheduling.ClaimBackend = "redis"
	cfg.Redis.URL = "redis://" + mr.Addr()
	rt := buildRuntime(t, cfg)

	if _, ok := rt.Claimer.(*scheduling.RedisClaimer); !ok {
		t.Fatalf("expected redis claimer, got %T", rt.Claimer)
	}
}

func TestBuildRejectsNilConfig(t *testing.T) {
	if _, err := Build(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
