package storage

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
)

var ErrFrameNotFound = errors.New("frame image not found")

var frameName = regexp.MustCompile(`^frame_(\d+)\.(jpg|jpeg|png)$`)

var frameExts = []string{"jpg", "jpeg", "png"}

// FrameName is the file name the detector uses for a captured frame.
func FrameName(frame int) string {
	return fmt.Sprintf("frame_%d.jpg", frame)
}

// ParseFrameName extracts the frame number from a frame image file name.
func ParseFrameName(name string) (int, bool) {
	m := frameName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

type FrameFile struct {
	Frame int
	Name  string
}

// FrameStore reads the frame images written by the detector.
type FrameStore struct {
	*LocalStorage
}

func NewFrameStore(dir string) (*FrameStore, error) {
	ls, err := NewLocalStorage(dir)
	if err != nil {
		return nil, err
	}
	return &FrameStore{LocalStorage: ls}, nil
}

// Find returns the name of the image stored for frame.
func (s *FrameStore) Find(frame int) (string, error) {
	for _, ext := range frameExts {
		name := fmt.Sprintf("frame_%d.%s", frame, ext)
		p, err := s.Path(name)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(p); err == nil {
			return name, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %d", ErrFrameNotFound, frame)
}

// LoadFrame decodes the image of frame.
func (s *FrameStore) LoadFrame(frame int) (image.Image, error) {
	name, err := s.Find(frame)
	if err != nil {
		return nil, err
	}
	f, err := s.OpenFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

// Frames lists the stored frame images ordered by frame number.
func (s *FrameStore) Frames() ([]FrameFile, error) {
	files, err := s.List("frame_*")
	if err != nil {
		return nil, err
	}
	var frames []FrameFile
	for _, f := range files {
		if n, ok := ParseFrameName(f.Name); ok {
			frames = append(frames, FrameFile{Frame: n, Name: f.Name})
		}
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Frame < frames[j].Frame })
	return frames, nil
}
