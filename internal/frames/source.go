package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	TargetWidth  = 480
	TargetHeight = 240
)

// ErrNoFrames means a full rotation of the playlist produced no frames.
var ErrNoFrames = errors.New("no frames in any video")

// Frame is one still ready for scoring.
type Frame struct {
	Image image.Image
	Video string
	Index int
}

// Source walks the playlist one frame at a time. It is not safe for
// concurrent use.
type Source struct {
	playlist  *Playlist
	extractor Extractor
	workDir   string
	width     int
	height    int

	stills    []string
	cursor    int
	activated bool
}

// NewSource extracts into workDir/active, which is wiped on every video
// change.
func NewSource(playlist *Playlist, extractor Extractor, workDir string) *Source {
	return &Source{
		playlist:  playlist,
		extractor: extractor,
		workDir:   workDir,
		width:     TargetWidth,
		height:    TargetHeight,
	}
}

// Next returns the next frame, moving to the next video when the current one
// is used up. Videos that yield no frames are skipped.
func (s *Source) Next(ctx context.Context) (Frame, error) {
	for tried := 0; s.cursor >= len(s.stills); tried++ {
		if tried >= s.playlist.Len() {
			return Frame{}, ErrNoFrames
		}
		if s.activated {
			s.playlist.Advance()
		}
		if err := s.activate(ctx); err != nil {
			return Frame{}, err
		}
	}

	path := s.stills[s.cursor]
	idx := s.cursor
	s.cursor++

	img, err := loadImage(path)
	if err != nil {
		return Frame{}, err
	}
	tracef("frame %d/%d of %s", idx+1, len(s.stills), filepath.Base(s.playlist.Current()))
	return Frame{Image: Fit(img, s.width, s.height), Video: s.playlist.Current(), Index: idx}, nil
}

// activate extracts the current video. Extraction failures other than
// cancellation leave the video with zero frames.
func (s *Source) activate(ctx context.Context) error {
	s.activated = true
	s.stills = nil
	s.cursor = 0

	video := s.playlist.Current()
	dir := filepath.Join(s.workDir, "active")
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	stills, err := s.extractor.Extract(ctx, video, dir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		opsf("skipping %s: %v", filepath.Base(video), err)
		return nil
	}
	if len(stills) == 0 {
		opsf("skipping %s: no frames", filepath.Base(video))
		return nil
	}
	diagf("activated %s with %d frames", filepath.Base(video), len(stills))
	s.stills = stills
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Fit returns img scaled to w×h with bilinear interpolation, or img itself if
// it already has that size.
func Fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
