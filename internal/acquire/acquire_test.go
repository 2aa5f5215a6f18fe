package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-accent/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingAcquirer struct {
	sources []string
}

func (r *recordingAcquirer) Acquire(_ context.Context, source string) (Media, error) {
	r.sources = append(r.sources, source)
	return Media{Path: source}, nil
}

func TestRouterDispatch(t *testing.T) {
	remote, local := &recordingAcquirer{}, &recordingAcquirer{}
	r := NewRouter(remote, local, true)
	ctx := context.Background()

	for _, src := range []string{"https://www.loom.com/share/abc", "HTTP://example.com/v.mp4"} {
		if _, err := r.Acquire(ctx, src); err != nil {
			t.Fatalf("acquire %s: %v", src, err)
		}
	}
	for _, src := range []string{"/tmp/clip.wav", "file:///tmp/clip.wav", "clip.wav"} {
		if _, err := r.Acquire(ctx, src); err != nil {
			t.Fatalf("acquire %s: %v", src, err)
		}
	}
	if len(remote.sources) != 2 || len(local.sources) != 3 {
		t.Fatalf("unexpected dispatch remote=%v local=%v", remote.sources, local.sources)
	}
}

func TestRouterRejects(t *testing.T) {
	r := NewRouter(&recordingAcquirer{}, &recordingAcquirer{}, false)
	cases := []string{"", "   ", "ftp://example.com/a.wav", "/tmp/clip.wav"}
	for _, src := range cases {
		if _, err := r.Acquire(context.Background(), src); !errors.Is(err, ErrAcquisition) {
			t.Fatalf("source %q: expected ErrAcquisition, got %v", src, err)
		}
	}
}

func TestFileAcquirer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := FileAcquirer{}.Acquire(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if m.Path != path {
		t.Fatalf("expected %s, got %s", path, m.Path)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("local media must not be removed on close: %v", err)
	}

	if _, err := (FileAcquirer{}).Acquire(context.Background(), dir); !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected ErrAcquisition for directory, got %v", err)
	}
	if _, err := (FileAcquirer{}).Acquire(context.Background(), filepath.Join(dir, "missing.wav")); !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected ErrAcquisition for missing file, got %v", err)
	}
}

const fakeDownloader = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
out=$(printf '%s' "$out" | sed 's/%(ext)s/wav/')
printf 'RIFF' > "$out"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "downloader.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecAcquirerProducesWAV(t *testing.T) {
	script := writeScript(t, fakeDownloader)
	cfg := config.AcquisitionConfig{Command: "sh " + script, WorkDir: t.TempDir(), MaxAttempts: 1}
	a, err := NewExecAcquirer(cfg, newLogger())
	if err != nil {
		t.Fatalf("new acquirer: %v", err)
	}

	m, err := a.Acquire(context.Background(), "https://example.com/watch?v=1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if filepath.Base(m.Path) != "audio.wav" {
		t.Fatalf("unexpected media path %s", m.Path)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(m.Path)); !os.IsNotExist(err) {
		t.Fatalf("expected temp dir removed, stat err=%v", err)
	}
}

func TestExecAcquirerRetriesThenFails(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "attempts")
	script := writeScript(t, "#!/bin/sh\necho x >> "+counter+"\necho 'HTTP Error 503' >&2\nexit 1\n")
	cfg := config.AcquisitionConfig{Command: "sh " + script, WorkDir: t.TempDir(), MaxAttempts: 3, RetryBaseMS: 1}
	a, err := NewExecAcquirer(cfg, newLogger())
	if err != nil {
		t.Fatalf("new acquirer: %v", err)
	}

	_, err = a.Acquire(context.Background(), "https://example.com/v")
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected ErrAcquisition, got %v", err)
	}
	data, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if got := len(data) / 2; got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestExecAcquirerMissingOutput(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nexit 0\n")
	cfg := config.AcquisitionConfig{Command: "sh " + script, WorkDir: t.TempDir(), MaxAttempts: 1}
	a, err := NewExecAcquirer(cfg, newLogger())
	if err != nil {
		t.Fatalf("new acquirer: %v", err)
	}
	if _, err := a.Acquire(context.Background(), "https://example.com/v"); !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected ErrAcquisition, got %v", err)
	}
}

func TestNewExecAcquirerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecAcquirer(config.AcquisitionConfig{Command: "  "}, newLogger()); err == nil {
		t.Fatal("expected error for empty command")
	}
}
