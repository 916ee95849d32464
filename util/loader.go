// Package util - replays a directory of still frames as a frame source.
package util

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/images"
	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from the file name.
	Frame int
	// Format is the encoding inferred from the extension.
	Format images.ImageFormat
}

// frameNumber parses names like frame-12.jpg. Names without a number sort last.
func frameNumber(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.TrimPrefix(base, "frame-")
	n, err := strconv.Atoi(base)
	return n, err == nil
}

// LoadDirectoryImageFiles reads all image files from a directory, ordered by
// frame number and then by name.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read frames dir %s", dir)
	}

	var files []ImageFile
	numbered := map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := images.FormatFromPath(entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read frame %s", path)
		}
		n, ok := frameNumber(entry.Name())
		numbered[path] = ok
		files = append(files, ImageFile{Path: path, Data: data, Frame: n, Format: format})
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := numbered[files[i].Path], numbered[files[j].Path]
		if ni != nj {
			return ni
		}
		if ni && files[i].Frame != files[j].Frame {
			return files[i].Frame < files[j].Frame
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// DirectorySource replays decoded frames in order. When the frames run out it
// returns controller.ErrNoFrame, or starts over when looping.
type DirectorySource struct {
	files []ImageFile
	loop  bool

	mu   sync.Mutex
	next int
	id   int
}

// NewDirectorySource loads every frame in dir.
func NewDirectorySource(dir string, loop bool) (*DirectorySource, error) {
	files, err := LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no frames in %s", dir)
	}
	return &DirectorySource{files: files, loop: loop}, nil
}

// Len returns the number of frames in the directory.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

// Next implements controller.FrameSource.
func (s *DirectorySource) Next(ctx context.Context) (controller.Frame, error) {
	if err := ctx.Err(); err != nil {
		return controller.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.files) {
		if !s.loop {
			return controller.Frame{}, errors.Wrap(controller.ErrNoFrame, "frames exhausted")
		}
		s.next = 0
	}
	file := s.files[s.next]
	s.next++

	img, err := images.Decode(file.Data, file.Format)
	if err != nil {
		return controller.Frame{}, errors.Wrapf(err, "frame %s", file.Path)
	}

	frame := controller.Frame{ID: s.id, Image: img, Timestamp: time.Now()}
	s.id++
	return frame, nil
}
