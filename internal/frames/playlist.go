// Package frames feeds the control loop with camera frames replayed from
// recorded videos, and encodes frames for the live view.
package frames

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"slices"

	"github.com/banshee-data/panel.sweep/internal/security"
)

var ErrNoVideos = errors.New("no videos found")

// Playlist is a fixed, shuffled rotation of video paths.
type Playlist struct {
	videos []string
	idx    int
}

// NewPlaylist shuffles a copy of paths once. A nil rng uses the global
// source.
func NewPlaylist(paths []string, rng *rand.Rand) *Playlist {
	videos := slices.Clone(paths)
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(videos), func(i, j int) { videos[i], videos[j] = videos[j], videos[i] })
	return &Playlist{videos: videos}
}

// ScanPlaylist builds a playlist from every *.mp4 file in dir. Symlinks that
// lead outside dir are skipped.
func ScanPlaylist(dir string, rng *rand.Rand) (*Playlist, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.mp4"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	var paths []string
	for _, p := range matches {
		if err := security.ValidatePathWithinDirectory(p, dir); err != nil {
			opsf("skipping %s: %v", filepath.Base(p), err)
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoVideos, dir)
	}
	slices.Sort(paths)
	return NewPlaylist(paths, rng), nil
}

func (p *Playlist) Len() int { return len(p.videos) }

// Current returns the active video path.
func (p *Playlist) Current() string {
	if len(p.videos) == 0 {
		return ""
	}
	return p.videos[p.idx]
}

// Advance moves to the next video, wrapping after the last.
func (p *Playlist) Advance() string {
	if len(p.videos) == 0 {
		return ""
	}
	p.idx = (p.idx + 1) % len(p.videos)
	return p.videos[p.idx]
}

// Videos returns the rotation order.
func (p *Playlist) Videos() []string { return slices.Clone(p.videos) }
