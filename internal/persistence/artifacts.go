package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/kdimtricp/lostfound/internal/storage"
	"golang.org/x/image/font/basicfont"
)

const (
	ImageExt    = ".jpg"
	MetadataExt = ".txt"
)

var artifactKey = regexp.MustCompile(`^(.+)_frame(\d+)$`)

// IsArtifactKey reports whether key has the "<id>_frame<n>" shape.
func IsArtifactKey(key string) bool {
	return artifactKey.MatchString(key)
}

// ArtifactWriter persists one annotated image and one metadata file per lost
// identity, both named after the record's Key.
type ArtifactWriter struct {
	store  *storage.LocalStorage
	frames *storage.FrameStore
}

// NewArtifactWriter writes into dir. frames may be nil, in which case only
// metadata files are written.
func NewArtifactWriter(dir string, frames *storage.FrameStore) (*ArtifactWriter, error) {
	store, err := storage.NewLocalStorage(dir)
	if err != nil {
		return nil, err
	}
	return &ArtifactWriter{store: store, frames: frames}, nil
}

func (w *ArtifactWriter) Store() *storage.LocalStorage { return w.store }

// Write persists the artifacts of rec and returns their paths. When the frame
// image is unavailable the metadata is still written, and the returned error
// wraps storage.ErrFrameNotFound alongside the metadata path.
func (w *ArtifactWriter) Write(rec models.LostRecord) ([]string, error) {
	key := rec.Key()

	var (
		img      image.Image
		frameErr error
	)
	if w.frames == nil {
		frameErr = fmt.Errorf("%w: %d (no frame directory)", storage.ErrFrameNotFound, rec.Frame())
	} else {
		img, frameErr = w.frames.LoadFrame(rec.Frame())
	}

	var paths []string
	if img != nil {
		data, err := annotate(img, rec.Identity)
		if err != nil {
			return nil, fmt.Errorf("annotate %s: %w", key, err)
		}
		p, err := w.store.SaveFile(key+ImageExt, data)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	p, err := w.store.SaveFile(key+MetadataExt, []byte(Metadata(rec, img)))
	if err != nil {
		return paths, err
	}
	paths = append(paths, p)

	if img == nil {
		return paths, frameErr
	}
	return paths, nil
}

// Remove deletes both artifacts of key. Files that are already gone are
// returned in missing rather than as an error.
func (w *ArtifactWriter) Remove(key string) (missing []string, err error) {
	var errs []error
	for _, ext := range []string{ImageExt, MetadataExt} {
		name := key + ext
		if err := w.store.DeleteFile(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, name)
				continue
			}
			errs = append(errs, err)
		}
	}
	return missing, errors.Join(errs...)
}

// Existing returns the keys that have at least one artifact on disk, sorted.
func (w *ArtifactWriter) Existing() ([]string, error) {
	files, err := w.store.List("*_frame*")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, f := range files {
		var key string
		switch {
		case strings.HasSuffix(f.Name, ImageExt):
			key = strings.TrimSuffix(f.Name, ImageExt)
		case strings.HasSuffix(f.Name, MetadataExt):
			key = strings.TrimSuffix(f.Name, MetadataExt)
		default:
			continue
		}
		if IsArtifactKey(key) {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Metadata renders the human-readable description of a lost record. img is the
// frame image, or nil when it was unavailable.
func Metadata(rec models.LostRecord, img image.Image) string {
	ident := rec.Identity
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\n", ident.ID)
	fmt.Fprintf(&b, "class: %s\n", ident.Name)
	fmt.Fprintf(&b, "class_id: %d\n", ident.ClassID)
	fmt.Fprintf(&b, "confidence: %.3f\n", ident.Confidence)
	fmt.Fprintf(&b, "frame: %d\n", ident.LastSeenFrame)
	fmt.Fprintf(&b, "first_seen_frame: %d\n", ident.FirstSeenFrame)
	fmt.Fprintf(&b, "lost_at: %s\n", rec.LostAt.Format(time.RFC3339))
	if at, ok := ident.Detection.CapturedAt(); ok {
		fmt.Fprintf(&b, "captured_at: %s\n", at.Format(time.RFC3339))
	}
	sig := ident.Detection.Color.String()
	if ident.Signature != nil {
		sig = ident.Signature.String()
	}
	fmt.Fprintf(&b, "color: %s\n", sig)
	bb := ident.LastSeenBBox
	fmt.Fprintf(&b, "bbox: xmin=%d ymin=%d xmax=%d ymax=%d\n", bb.XMin, bb.YMin, bb.XMax, bb.YMax)
	if img != nil {
		r := img.Bounds()
		fmt.Fprintf(&b, "image: %dx%d\n", r.Dx(), r.Dy())
	} else {
		b.WriteString("image: unavailable\n")
	}
	return b.String()
}

// annotate draws the bounding box and class label of ident onto a copy of img
// and encodes it as JPEG.
func annotate(img image.Image, ident models.Identity) ([]byte, error) {
	dc := gg.NewContextForImage(img)
	bb := ident.LastSeenBBox
	x, y := float64(bb.XMin), float64(bb.YMin)
	w, h := float64(bb.XMax-bb.XMin), float64(bb.YMax-bb.YMin)

	dc.SetRGB(1, 0.1, 0.1)
	dc.SetLineWidth(2)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()

	dc.SetFontFace(basicfont.Face7x13)
	label := fmt.Sprintf("%s %.2f", ident.ID, ident.Confidence)
	tw, th := dc.MeasureString(label)
	ly := y - 4
	if ly-th < 0 {
		// No room above the box.
		ly = y + th + 4
	}
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(x, ly-th-2, tw+4, th+4)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(label, x+2, ly)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
