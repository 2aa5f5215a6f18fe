package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/loqalabs/loqa-accent/internal/config"
	"github.com/mattn/go-shellwords"
)

// ExecAcquirer downloads remote media with a yt-dlp compatible command and
// extracts the audio track as WAV.
type ExecAcquirer struct {
	cmd []string
	cfg config.AcquisitionConfig
	log *slog.Logger
}

func NewExecAcquirer(cfg config.AcquisitionConfig, log *slog.Logger) (*ExecAcquirer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse acquisition command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("acquisition command is empty")
	}
	return &ExecAcquirer{
		cmd: args,
		cfg: cfg,
		log: log.With(slog.String("component", "acquire")),
	}, nil
}

func (a *ExecAcquirer) Acquire(ctx context.Context, source string) (Media, error) {
	dir, err := os.MkdirTemp(a.cfg.WorkDir, "loqa_accent_*")
	if err != nil {
		return Media{}, fmt.Errorf("%w: temp dir: %w", ErrAcquisition, err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	args := append([]string{}, a.cmd[1:]...)
	args = append(args,
		"-x",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"-o", filepath.Join(dir, "audio.%(ext)s"),
		source,
	)

	policy := backoff.NewExponentialBackOff()
	if a.cfg.RetryBaseMS > 0 {
		policy.InitialInterval = time.Duration(a.cfg.RetryBaseMS) * time.Millisecond
	}
	attempts := a.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	start := time.Now()
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, a.run(ctx, args)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.log.Warn("media download failed, retrying",
				slog.String("source", source),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		_ = cleanup()
		return Media{}, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	path, err := firstWAV(dir)
	if err != nil {
		_ = cleanup()
		return Media{}, err
	}
	a.log.Info("media acquired", slog.String("source", source), slog.Duration("elapsed", time.Since(start)))
	return Media{Path: path, cleanup: cleanup}, nil
}

// run executes one download attempt. A missing binary or a cancelled request
// stops the retry loop.
func (a *ExecAcquirer) run(ctx context.Context, args []string) error {
	runCtx := ctx
	if a.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(a.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	command := exec.CommandContext(runCtx, a.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	err := command.Run()
	if err == nil {
		return nil
	}
	err = fmt.Errorf("download command failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	var execErr *exec.Error
	if errors.As(err, &execErr) || ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	return err
}

func firstWAV(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no audio file was extracted", ErrAcquisition)
	}
	sort.Strings(matches)
	return matches[0], nil
}
