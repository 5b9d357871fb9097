package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type denyHost struct{ reason string }

func (h denyHost) AskPermission(context.Context, string, []string) error {
	return &Denied{Action: "write", Reason: h.reason}
}

type recordingHost struct {
	action string
	paths  []string
}

func (h *recordingHost) AskPermission(ctx context.Context, action string, paths []string) error {
	h.action = action
	h.paths = paths
	return nil
}

func TestWriteAll_WritesBatch(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	err := w.WriteAll(context.Background(), map[string][]byte{
		"report.md":        []byte("# Report\n"),
		"data/events.json": []byte(`{"events":[]}`),
	})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Report\n", string(got))

	_, err = os.Stat(filepath.Join(root, "data", "events.json"))
	assert.NoError(t, err)
}

func TestWriteAll_ArchivesPriorContents(t *testing.T) {
	root := t.TempDir()
	stamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	w := NewWriter(root, nil, WithClock(fixedClock{at: stamp}))

	require.NoError(t, w.WriteAll(context.Background(), map[string][]byte{
		"report.md": []byte("first run"),
	}))
	require.NoError(t, w.WriteAll(context.Background(), map[string][]byte{
		"report.md": []byte("second run"),
	}))

	current, err := os.ReadFile(filepath.Join(root, "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "second run", string(current))

	archived, err := os.ReadFile(filepath.Join(root, "history", "2026-03-14T09-26-53.000Z", "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "first run", string(archived))
}

func TestWriteAll_HostDenialWritesNothing(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, denyHost{reason: "read-only session"})

	err := w.WriteAll(context.Background(), map[string][]byte{"report.md": []byte("x")})
	require.Error(t, err)

	var denied *Denied
	require.True(t, errors.As(err, &denied))
	assert.Contains(t, denied.Error(), "read-only session")

	_, statErr := os.Stat(filepath.Join(root, "report.md"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteAll_PermissionAskedOncePerBatch(t *testing.T) {
	host := &recordingHost{}
	w := NewWriter(t.TempDir(), host)

	require.NoError(t, w.WriteAll(context.Background(), map[string][]byte{
		"b.md": []byte("b"),
		"a.md": []byte("a"),
	}))

	assert.Equal(t, "write", host.action)
	assert.Equal(t, []string{"a.md", "b.md"}, host.paths, "paths arrive sorted")
}

func TestWriteAll_RejectsEscapingPaths(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)

	tests := []string{
		"../outside.md",
		"/etc/passwd",
		"nested/../../outside.md",
		".",
	}
	for _, rel := range tests {
		err := w.WriteAll(context.Background(), map[string][]byte{rel: []byte("x")})
		assert.Error(t, err, "path %q must be rejected", rel)
	}
}

func TestWriteAll_EmptyBatchIsNoop(t *testing.T) {
	host := &recordingHost{}
	w := NewWriter(t.TempDir(), host)

	require.NoError(t, w.WriteAll(context.Background(), nil))
	assert.Empty(t, host.action, "no permission prompt for an empty batch")
}

func TestWriteAll_CanceledContextStops(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteAll(ctx, map[string][]byte{"report.md": []byte("x")})
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(root, "report.md"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDenied_Error(t *testing.T) {
	assert.Equal(t, "permission denied for write", (&Denied{Action: "write"}).Error())
	assert.Equal(t, "permission denied for write: because", (&Denied{Action: "write", Reason: "because"}).Error())
}
