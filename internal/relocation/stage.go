package relocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/objectstore"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/httpx"
	"postflow/internal/stage"
	"postflow/internal/staging"
	"postflow/internal/textutil"
)

const (
	stageName          = "relocation"
	defaultContentType = "video/mp4"
)

// assetNamespace scopes the name-based UUIDs used as object keys.
var assetNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("postflow/assets"))

// Stage downloads styled assets and republishes them to durable storage.
type Stage struct {
	store    *queue.Store
	cfg      *config.Config
	uploader objectstore.Uploader
	download *httpx.Client
	logger   *slog.Logger
}

// NewStage wires the relocation stage. download may be nil to use a default
// retrying client sized for large files.
func NewStage(store *queue.Store, cfg *config.Config, uploader objectstore.Uploader, download *httpx.Client, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	if download == nil {
		download = httpx.New(httpx.Config{Name: stageName, Timeout: 10 * time.Minute})
	}
	return &Stage{
		store:    store,
		cfg:      cfg,
		uploader: uploader,
		download: download,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

func (s *Stage) Name() string { return stageName }

func (s *Stage) Handles() []queue.Status {
	return []queue.Status{queue.StatusRelocating}
}

// Advance relocates the styled asset and moves the record to scheduling. Any
// failure leaves the record in relocating for the sweep.
func (s *Stage) Advance(ctx context.Context, item *queue.Item, _ bool) (*queue.Item, error) {
	if item == nil || item.Status != queue.StatusRelocating {
		return item, nil
	}
	if err := stage.RequireField(stageName, "styled url", item.StyledURL); err != nil {
		return nil, err
	}
	permanentURL, err := s.Relocate(ctx, item.ID, item.Brand, item.StyledURL)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Transition(ctx, item.ID, queue.StatusRelocating, queue.StatusScheduling,
		queue.Patch{FinalAssetURL: queue.Set(permanentURL), LastError: queue.Set("")})
	return stage.Settle(ctx, s.store, item.ID, updated, err)
}

// Relocate copies styledURL into durable storage and returns the public URL.
// A rejected or missing download means the provider link expired; it is
// reported as ErrNotFound so the sweep steps the record back to fetch a fresh
// link.
func (s *Stage) Relocate(ctx context.Context, id int64, brand, styledURL string) (string, error) {
	resp, err := s.download.Open(ctx, styledURL, nil)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
			return "", services.Wrap(services.ErrNotFound, stageName, "download", "styled url expired: "+err.Error(), nil)
		}
		return "", services.Wrap(services.ErrTransient, stageName, "download", "fetch styled asset", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if media, _, parseErr := mime.ParseMediaType(contentType); parseErr != nil || !strings.HasPrefix(media, "video/") {
		contentType = defaultContentType
	}

	spool, size, err := staging.Spool(ctx, s.cfg.StagingDir(), staging.SpoolPattern(id, extension(contentType)), resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "download", "spool styled asset", err)
	}
	defer os.Remove(spool)
	if resp.ContentLength > 0 && size != resp.ContentLength {
		return "", services.Wrap(services.ErrTransient, stageName, "download",
			fmt.Sprintf("truncated download: got %d of %d bytes", size, resp.ContentLength), nil)
	}

	file, err := os.Open(spool)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "upload", "open spool", err)
	}
	defer file.Close()

	key := ObjectKey(brand, styledURL, contentType)
	permanentURL, err := s.uploader.Put(ctx, key, file, size, contentType)
	if err != nil {
		return "", err
	}
	s.logger.Info("asset relocated",
		logging.WorkflowID(id),
		logging.String("key", key),
		logging.Int64("bytes", size),
	)
	return permanentURL, nil
}

// ObjectKey names the durable object for a styled asset:
// <brand>/<uuid v5 of the source url><ext>.
func ObjectKey(brand, styledURL, contentType string) string {
	id := uuid.NewSHA1(assetNamespace, []byte(styledURL))
	return path.Join(textutil.Slug(brand), id.String()+extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	default:
		return ".mp4"
	}
}

// HealthCheck verifies durable storage is configured.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.uploader == nil {
		return stage.Unhealthy(stageName, "object storage not configured")
	}
	if s.cfg.Storage.PublicBaseURL == "" {
		return stage.MissingSetting(stageName, "storage.public_base_url")
	}
	return stage.Healthy(stageName)
}
