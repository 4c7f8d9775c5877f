// Package imagestore persists images reassembled from inbound
// end-to-end image transfers, per spec §4.5/§6. Compression itself
// lives in internal/packet (it's part of the wire format); this
// package only owns the receive-side directory layout.
package imagestore

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

// captureSubdir holds synthesized placeholder images, kept separate
// from received images so the two naming conventions never collide.
const captureSubdir = "captured"

// Store writes reassembled images to a directory, named per spec §6:
// image_from_satellite_<src>_<unix>.png.
type Store struct {
	dir        string
	captureDir string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Store rooted at dir, creating it (and its capture
// subdirectory) if necessary.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("imagestore: create directory: %w", err)
	}
	captureDir := filepath.Join(dir, captureSubdir)
	if err := os.MkdirAll(captureDir, 0755); err != nil {
		return nil, fmt.Errorf("imagestore: create capture directory: %w", err)
	}
	return &Store{dir: dir, captureDir: captureDir, logger: logger, now: time.Now}, nil
}

// SaveImage implements packet.ImagePersister: writes the inflated
// image bytes for src under the deployment's naming convention.
func (s *Store) SaveImage(src meshnet.PeerId, data []byte) error {
	name := fmt.Sprintf("image_from_satellite_%d_%d.png", uint16(src), s.now().Unix())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("imagestore: write %s: %w", path, err)
	}
	if s.logger != nil {
		s.logger.Info("image persisted", "src", src, "path", path, "bytes", len(data), "component", "general")
	}
	return nil
}

// CaptureImage synthesizes a placeholder frame and persists it under
// the capture directory, returning its path. satnode has no real
// camera (spec §1 Non-goals); this mirrors the ground-truth
// implementation's own dummy-frame capture.
func (s *Store) CaptureImage() (string, error) {
	const size = 1024
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{B: 255, A: 255}}, image.Point{}, draw.Src)

	name := fmt.Sprintf("astro_image_%d.png", s.now().Unix())
	path := filepath.Join(s.captureDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("imagestore: create capture file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("imagestore: encode capture image: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("image captured", "path", path, "component", "general")
	}
	return path, nil
}
