package frames

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPlaylist_SkipsEscapingSymlinks(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "videos")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.mp4"), nil, 0o644))
	outside := filepath.Join(root, "outside.mp4")
	require.NoError(t, os.WriteFile(outside, nil, 0o644))
	if err := os.Symlink(outside, filepath.Join(dir, "escape.mp4")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	p, err := ScanPlaylist(dir, seeded())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "kept.mp4")}, p.Videos())
}
