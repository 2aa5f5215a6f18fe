package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/loqalabs/loqa-accent/internal/config"
)

// ErrAcquisition marks failures to fetch or decode media. No analysis result
// is produced when it occurs.
var ErrAcquisition = errors.New("media acquisition failed")

// Media is a local audio file ready for decoding.
type Media struct {
	Path    string
	cleanup func() error
}

// Close removes any temporary files backing the media.
func (m Media) Close() error {
	if m.cleanup == nil {
		return nil
	}
	return m.cleanup()
}

// Acquirer resolves a source reference into local audio.
type Acquirer interface {
	Acquire(ctx context.Context, source string) (Media, error)
}

// Router dispatches remote URLs to the downloader and local paths to the
// filesystem.
type Router struct {
	remote     Acquirer
	local      Acquirer
	allowLocal bool
}

// New builds the default router from configuration.
func New(cfg config.AcquisitionConfig, log *slog.Logger) (*Router, error) {
	remote, err := NewExecAcquirer(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewRouter(remote, FileAcquirer{}, cfg.AllowLocal), nil
}

func NewRouter(remote, local Acquirer, allowLocal bool) *Router {
	return &Router{remote: remote, local: local, allowLocal: allowLocal}
}

func (r *Router) Acquire(ctx context.Context, source string) (Media, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Media{}, fmt.Errorf("%w: source must not be empty", ErrAcquisition)
	}
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths, including Windows drive letters.
		return r.acquireLocal(ctx, source)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return r.remote.Acquire(ctx, source)
	case "file":
		return r.acquireLocal(ctx, source)
	default:
		return Media{}, fmt.Errorf("%w: unsupported source scheme %q", ErrAcquisition, u.Scheme)
	}
}

func (r *Router) acquireLocal(ctx context.Context, source string) (Media, error) {
	if !r.allowLocal {
		return Media{}, fmt.Errorf("%w: local sources are disabled", ErrAcquisition)
	}
	return r.local.Acquire(ctx, source)
}
