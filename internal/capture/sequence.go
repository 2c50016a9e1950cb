package capture

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tphakala/faceattend/internal/errors"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff"}

// ImageSequence plays the still images of a directory in name order, one per
// interval, then reports io.EOF.
type ImageSequence struct {
	dir      string
	interval time.Duration
	files    []string
	next     int

	closed    chan struct{}
	closeOnce sync.Once
}

// NewImageSequence creates a grabber over dir. interval paces Grab; zero
// returns frames as fast as they decode.
func NewImageSequence(dir string, interval time.Duration) *ImageSequence {
	return &ImageSequence{dir: dir, interval: interval, closed: make(chan struct{})}
}

// ListImages returns the image files of dir sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// Open lists the directory.
func (s *ImageSequence) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	files, err := ListImages(s.dir)
	if err != nil {
		return errors.New(err).Component("capture").Category(errors.CategoryFileIO).Context("dir", s.dir).Build()
	}
	if len(files) == 0 {
		return errors.Newf("no images in %s", s.dir).Component("capture").Category(errors.CategoryNotFound).Build()
	}
	s.files = files
	return nil
}

// Grab decodes the next image.
func (s *ImageSequence) Grab() (image.Image, error) {
	if s.next > 0 && s.interval > 0 {
		select {
		case <-s.closed:
			return nil, io.ErrClosedPipe
		case <-time.After(s.interval):
		}
	}
	select {
	case <-s.closed:
		return nil, io.ErrClosedPipe
	default:
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New(err).Component("capture").Category(errors.CategoryFileParsing).Context("file", path).Build()
	}
	return img, nil
}

// Close unblocks a pending Grab. Safe to call more than once.
func (s *ImageSequence) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
