package frames

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Extractor writes every frame of a video as a JPEG still into outDir and
// returns the still paths in frame order.
type Extractor interface {
	Extract(ctx context.Context, video, outDir string) ([]string, error)
}

// FFmpegExtractor shells out to the ffmpeg binary.
type FFmpegExtractor struct {
	// Binary defaults to "ffmpeg" on PATH.
	Binary string
	// Quality is ffmpeg's -q:v scale, 2 (best) to 31. Zero means 2.
	Quality int
}

func (e FFmpegExtractor) command(ctx context.Context, video, outDir string) *exec.Cmd {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	q := e.Quality
	if q <= 0 {
		q = 2
	}
	return exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", video,
		"-q:v", strconv.Itoa(q),
		filepath.Join(outDir, "frame_%05d.jpg"),
	)
}

// Extract runs ffmpeg. A video ffmpeg cannot decode yields an error and no
// stills.
func (e FFmpegExtractor) Extract(ctx context.Context, video, outDir string) ([]string, error) {
	cmd := e.command(ctx, video, outDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed on %s: %w: %s", filepath.Base(video), err, out)
	}
	return listStills(outDir)
}

// listStills returns the sorted JPEG files in dir.
func listStills(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	var total int64
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	diagf("%d stills (%s) in %s", len(paths), humanize.Bytes(uint64(total)), dir)
	return paths, nil
}
