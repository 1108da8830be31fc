package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"postflow/internal/config"
	"postflow/internal/scheduling"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCredential reports whether a secret is present without echoing it.
func CheckCredential(name, value string) Result {
	if strings.TrimSpace(value) == "" {
		return Result{Name: name, Detail: "missing"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckBrands verifies at least one brand is configured and each has
// presenters to rotate through.
func CheckBrands(cfg *config.Config) Result {
	const name = "Brands"
	names := cfg.BrandNames()
	if len(names) == 0 {
		return Result{Name: name, Detail: "no brands configured"}
	}
	for _, brand := range names {
		settings, _ := cfg.Brand(brand)
		if len(settings.Presenters) == 0 {
			return Result{Name: name, Detail: fmt.Sprintf("brand %s has no presenters", brand)}
		}
		for _, presenter := range settings.Presenters {
			if _, ok := cfg.HeyGen.Presenters[presenter]; !ok {
				return Result{Name: name, Detail: fmt.Sprintf("brand %s presenter %q has no [heygen.presenters] entry", brand, presenter)}
			}
		}
	}
	return Result{Name: name, Passed: true, Detail: strings.Join(names, ", ")}
}

// CheckStorage verifies the object store settings needed to relocate assets.
func CheckStorage(storage config.Storage) Result {
	const name = "Object storage"
	switch {
	case storage.Bucket == "":
		return Result{Name: name, Detail: "storage.bucket is not set"}
	case storage.PublicBaseURL == "":
		return Result{Name: name, Detail: "storage.public_base_url is not set"}
	default:
		return Result{Name: name, Passed: true, Detail: storage.Bucket}
	}
}

// CheckRedis pings the slot-claim Redis with a 5-second timeout.
func CheckRedis(ctx context.Context, url string) Result {
	const name = "Redis slot claims"
	client, err := scheduling.NewRedisClient(url)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer client.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "ping timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ping timed out (unreachable)"
	}
	return err.Error()
}
