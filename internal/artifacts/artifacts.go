// Package artifacts persists workflow outputs. Writes are permission
// gated, prior contents are archived under history/, and each file lands
// atomically so a cancelled run never leaves a half-written report.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Host decides write policy. Implementations may prompt a user, consult
// an allowlist, or approve everything in unattended runs.
type Host interface {
	AskPermission(ctx context.Context, action string, paths []string) error
}

// AutoApprove grants every request; the CLI default.
type AutoApprove struct{}

func (AutoApprove) AskPermission(context.Context, string, []string) error { return nil }

// Denied is returned by hosts that refuse a write request.
type Denied struct {
	Action string
	Reason string
}

func (d *Denied) Error() string {
	if d.Reason == "" {
		return fmt.Sprintf("permission denied for %s", d.Action)
	}
	return fmt.Sprintf("permission denied for %s: %s", d.Action, d.Reason)
}

// Clock abstracts time for deterministic history stamps in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Writer writes a batch of files under a fixed root directory.
type Writer struct {
	root  string
	host  Host
	clock Clock
	log   zerolog.Logger
}

// Option customizes a Writer.
type Option func(*Writer)

// WithClock injects a clock, used by tests.
func WithClock(c Clock) Option {
	return func(w *Writer) { w.clock = c }
}

// WithLogger attaches a logger for write traces.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Writer) { w.log = log }
}

// NewWriter builds a writer rooted at dir. A nil host auto-approves.
func NewWriter(root string, host Host, opts ...Option) *Writer {
	if host == nil {
		host = AutoApprove{}
	}
	w := &Writer{root: root, host: host, clock: systemClock{}, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the writer's output directory.
func (w *Writer) Root() string { return w.root }

// WriteAll writes every file in the batch, keyed by path relative to the
// writer root. Permission is requested once for the whole batch before
// anything touches disk; existing targets are archived first.
func (w *Writer) WriteAll(ctx context.Context, files map[string][]byte) error {
	if len(files) == 0 {
		return nil
	}

	rels := make([]string, 0, len(files))
	for rel := range files {
		clean := filepath.Clean(rel)
		if filepath.IsAbs(rel) || clean != rel || clean == "." ||
			clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("artifact path %q escapes output root", rel)
		}
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	if err := w.host.AskPermission(ctx, "write", rels); err != nil {
		return err
	}

	stamp := historyStamp(w.clock.Now())
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(w.root, rel)
		if err := w.archiveExisting(target, rel, stamp); err != nil {
			return err
		}
		if err := writeAtomic(target, files[rel]); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
		w.log.Debug().Str("path", target).Int("bytes", len(files[rel])).Msg("artifact written")
	}
	return nil
}

// historyStamp renders a UTC instant with filesystem-safe separators.
func historyStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05.000Z")
}

// archiveExisting moves the current contents of target, if any, into the
// run's history directory before the overwrite.
func (w *Writer) archiveExisting(target, rel, stamp string) error {
	prior, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive %s: %w", rel, err)
	}
	archived := filepath.Join(w.root, "history", stamp, rel)
	if err := writeAtomic(archived, prior); err != nil {
		return fmt.Errorf("archive %s: %w", rel, err)
	}
	return nil
}

// writeAtomic writes via a temp file and rename in the target directory.
func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
