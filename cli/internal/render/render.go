// Package render turns completed transfers into image files and loads images
// for sending.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/BioHazard786/pairlink/cli/internal/utils"
)

// BytesPerPixel is the size of one NRGBA pixel.
const BytesPerPixel = 4

var ErrGeometryMismatch = errors.New("payload size does not match frame geometry")

// Sink accepts a completed pixel buffer.
type Sink interface {
	Render(width, height int, pixels []byte) error
}

// FileSink writes each rendered frame as a PNG into Dir. Payloads that do not
// match their geometry are stored raw with a .bin extension.
type FileSink struct {
	Dir    string
	Prefix string

	mu    sync.Mutex
	count int
	last  string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileSink{Dir: dir, Prefix: "pairlink"}, nil
}

func (s *FileSink) next(ext string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	name := filepath.Join(s.Dir, fmt.Sprintf("%s-%d%s", s.Prefix, s.count, ext))
	name = utils.GetUniqueFilename(name)
	s.last = name
	return name
}

// Last returns the path of the most recently written file.
func (s *FileSink) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Render implements Sink.
func (s *FileSink) Render(width, height int, pixels []byte) error {
	_, err := s.render(width, height, pixels)
	return err
}

func (s *FileSink) render(width, height int, pixels []byte) (string, error) {
	img, err := Frame(width, height, pixels)
	if err != nil {
		return "", err
	}
	path := s.next(".png")
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// Store writes a payload that cannot be rendered.
func (s *FileSink) Store(payload []byte) error {
	_, err := s.store(payload)
	return err
}

func (s *FileSink) store(payload []byte) (string, error) {
	path := s.next(".bin")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("store %s: %w", path, err)
	}
	return path, nil
}

// GeometrySource reports the geometry announced for incoming frames.
type GeometrySource interface {
	WaitGeometry(ctx context.Context) (width, height int, err error)
}

// Deliver renders payload with the geometry from geo and returns the written
// path. When no geometry arrives before ctx is done, or the payload does not
// match it, the payload is stored raw instead.
func (s *FileSink) Deliver(ctx context.Context, geo GeometrySource, payload []byte) (string, error) {
	width, height, err := geo.WaitGeometry(ctx)
	if err == nil {
		path, err := s.render(width, height, payload)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, ErrGeometryMismatch) {
			return "", err
		}
	}
	return s.store(payload)
}

// Frame wraps pixels as an image without copying.
func Frame(width, height int, pixels []byte) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || len(pixels) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrGeometryMismatch, len(pixels), width, height)
	}
	return &image.NRGBA{
		Pix:    pixels,
		Stride: width * BytesPerPixel,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// Load decodes a PNG or JPEG, fits it inside maxSide pixels per side when
// maxSide > 0, and returns its NRGBA pixel buffer.
func Load(path string, maxSide int) (width, height int, pixels []byte, err error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("open image: %w", err)
	}

	var nrgba *image.NRGBA
	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		nrgba = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	} else {
		nrgba = imaging.Clone(img)
	}

	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	return w, h, nrgba.Pix, nil
}
