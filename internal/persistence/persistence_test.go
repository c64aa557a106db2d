package persistence

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	lfcolor "github.com/kdimtricp/lostfound/internal/color"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/kdimtricp/lostfound/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(id, name, hex string, frame int) models.Identity {
	rec := models.DetectionRecord{
		ClassID: 1,
		Name:    name,
		BBox:    models.BBox{XMin: 0, YMin: 0, XMax: 10, YMax: 10},
		Color:   models.ColorValue{Hex: hex},
		Frame:   frame,
	}
	sig, _ := lfcolor.ParseHex(hex)
	return *models.NewIdentity(id, rec, sig)
}

func TestEncodeSnapshot(t *testing.T) {
	data, err := EncodeSnapshot([]models.Identity{
		identity("dog_1", "dog", "#112233", 3),
		identity("cat_1", "cat", "#ffffff", 4),
	})
	require.NoError(t, err)

	want := `dog_1: {"class":1,"name":"dog","bbox":{"xmin":0,"ymin":0,"xmax":10,"ymax":10},"color":"#112233","frame":3}
cat_1: {"class":1,"name":"cat","bbox":{"xmin":0,"ymin":0,"xmax":10,"ymax":10},"color":"#ffffff","frame":4}
`
	assert.Equal(t, want, string(data))

	empty, err := EncodeSnapshot(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseSnapshot(t *testing.T) {
	in := `dog_1: {"class":1,"name":"dog","color":"#112233","frame":3}
not a snapshot line

cat_1: {broken
cup_2: {"class":41,"name":"cup","confidence":0.5,"color":"#000000","frame":9}
`
	entries, bad := ParseSnapshot(strings.NewReader(in))
	require.Len(t, entries, 2)
	assert.Equal(t, "dog_1", entries[0].ID)
	assert.Equal(t, 3, entries[0].Detection.Frame)
	assert.Equal(t, "cup_2", entries[1].ID)
	assert.InDelta(t, 0.5, entries[1].Detection.ConfidenceOr(0), 1e-9)
	assert.Len(t, bad, 2)
	assert.ErrorIs(t, bad[0], ErrInvalidSnapshotLine)
}

func TestSnapshotWriterSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "identities.txt")
	w, err := NewSnapshotWriter(path)
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	require.NoError(t, w.Save([]models.Identity{identity("dog_1", "dog", "#112233", 3)}))
	require.NoError(t, w.Save([]models.Identity{identity("cat_1", "cat", "#ffffff", 4)}))

	entries, bad, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Len(t, entries, 1)
	assert.Equal(t, "cat_1", entries[0].ID)

	require.NoError(t, w.Save(nil))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, st.Size(), "an empty table is an empty file, not a missing one")
}

func TestSnapshotAtomicReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.txt")
	w, err := NewSnapshotWriter(path)
	require.NoError(t, err)

	small := []models.Identity{identity("dog_1", "dog", "#112233", 3)}
	large := []models.Identity{
		identity("dog_1", "dog", "#112233", 5),
		identity("dog_2", "dog", "#aa0000", 5),
		identity("cat_1", "cat", "#ffffff", 5),
	}
	require.NoError(t, w.Save(small))

	var (
		stop    atomic.Bool
		wg      sync.WaitGroup
		reads   atomic.Int64
		badSeen atomic.Value
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			data, err := os.ReadFile(path)
			if err != nil {
				badSeen.Store("read error: " + err.Error())
				return
			}
			entries, bad := ParseSnapshot(bytes.NewReader(data))
			if len(data) == 0 || len(bad) > 0 || (len(entries) != 1 && len(entries) != 3) {
				badSeen.Store("partial snapshot: " + string(data))
				return
			}
			reads.Add(1)
		}
	}()

	for i := 0; i < 200; i++ {
		table := small
		if i%2 == 0 {
			table = large
		}
		require.NoError(t, w.Save(table))
	}
	stop.Store(true)
	wg.Wait()

	if v := badSeen.Load(); v != nil {
		t.Fatal(v)
	}
	assert.Positive(t, reads.Load())
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 17, G: 34, B: 51, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func lostRecord(frame int) models.LostRecord {
	ident := identity("dog_1", "dog", "#112233", frame)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ident.State = models.StateLost
	ident.LostAt = at
	return models.LostRecord{Identity: ident, LostAt: at}
}

func TestArtifactWriter(t *testing.T) {
	frameDir := t.TempDir()
	writePNG(t, filepath.Join(frameDir, "frame_3.png"), 40, 30)
	frames, err := storage.NewFrameStore(frameDir)
	require.NoError(t, err)

	dir := t.TempDir()
	w, err := NewArtifactWriter(dir, frames)
	require.NoError(t, err)

	paths, err := w.Write(lostRecord(3))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "dog_1_frame3.jpg"),
		filepath.Join(dir, "dog_1_frame3.txt"),
	}, paths)

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	img, err := jpeg.Decode(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())

	meta, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	for _, want := range []string{
		"id: dog_1\n",
		"class: dog\n",
		"frame: 3\n",
		"lost_at: 2024-05-01T12:00:00Z\n",
		"color: #112233\n",
		"bbox: xmin=0 ymin=0 xmax=10 ymax=10\n",
		"image: 40x30\n",
	} {
		assert.Contains(t, string(meta), want)
	}

	keys, err := w.Existing()
	require.NoError(t, err)
	assert.Equal(t, []string{"dog_1_frame3"}, keys)

	missing, err := w.Remove("dog_1_frame3")
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])

	missing, err = w.Remove("dog_1_frame3")
	require.NoError(t, err)
	assert.Equal(t, []string{"dog_1_frame3.jpg", "dog_1_frame3.txt"}, missing)
}

func TestArtifactWriterWithoutFrame(t *testing.T) {
	frames, err := storage.NewFrameStore(t.TempDir())
	require.NoError(t, err)
	dir := t.TempDir()

	for name, fs := range map[string]*storage.FrameStore{"missing image": frames, "no frame store": nil} {
		t.Run(name, func(t *testing.T) {
			w, err := NewArtifactWriter(dir, fs)
			require.NoError(t, err)

			paths, err := w.Write(lostRecord(7))
			assert.ErrorIs(t, err, storage.ErrFrameNotFound)
			require.Len(t, paths, 1)
			assert.Equal(t, filepath.Join(dir, "dog_1_frame7.txt"), paths[0])

			meta, err := os.ReadFile(paths[0])
			require.NoError(t, err)
			assert.Contains(t, string(meta), "image: unavailable\n")
		})
	}
}

func TestExistingIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cat_2_frame10.txt", "notes_frame.txt", "frame_3.jpg", "dog_1_frame4.jpg", "dog_1_frame4.txt", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	w, err := NewArtifactWriter(dir, nil)
	require.NoError(t, err)

	keys, err := w.Existing()
	require.NoError(t, err)
	assert.Equal(t, []string{"cat_2_frame10", "dog_1_frame4"}, keys)
}
