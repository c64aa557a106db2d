// Package persistence materializes the identity table and lost-object
// artifacts on disk. Every write is an atomic replace.
package persistence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/kdimtricp/lostfound/internal/storage"
)

var ErrInvalidSnapshotLine = errors.New("snapshot line is not of the form '<id>: <json>'")

// SnapshotEntry is one line of the identity snapshot.
type SnapshotEntry struct {
	ID        string
	Detection models.DetectionRecord
}

// EncodeSnapshot renders identities one per line as "<id>: <json>", in the
// order given.
func EncodeSnapshot(identities []models.Identity) ([]byte, error) {
	var buf bytes.Buffer
	for _, ident := range identities {
		rec := ident.Detection
		rec.Frame = ident.LastSeenFrame
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ident.ID, err)
		}
		buf.WriteString(ident.ID)
		buf.WriteString(": ")
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

type SnapshotWriter struct {
	store *storage.LocalStorage
	name  string
}

func NewSnapshotWriter(path string) (*SnapshotWriter, error) {
	store, err := storage.NewLocalStorage(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{store: store, name: filepath.Base(path)}, nil
}

func (w *SnapshotWriter) Path() string {
	return filepath.Join(w.store.Base(), w.name)
}

// Save overwrites the snapshot with the given Active identities. On failure the
// previous snapshot stays intact.
func (w *SnapshotWriter) Save(identities []models.Identity) error {
	data, err := EncodeSnapshot(identities)
	if err != nil {
		return err
	}
	if _, err := w.store.SaveFile(w.name, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ParseSnapshot reads snapshot lines. Lines that do not parse are reported and
// skipped.
func ParseSnapshot(r io.Reader) ([]SnapshotEntry, []error) {
	var (
		entries []SnapshotEntry
		bad     []error
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, payload, ok := strings.Cut(line, ": ")
		if !ok || id == "" {
			bad = append(bad, fmt.Errorf("line %d: %w", n, ErrInvalidSnapshotLine))
			continue
		}
		var rec models.DetectionRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			bad = append(bad, fmt.Errorf("line %d: %w", n, err))
			continue
		}
		entries = append(entries, SnapshotEntry{ID: id, Detection: rec})
	}
	if err := sc.Err(); err != nil {
		bad = append(bad, err)
	}
	return entries, bad
}

// ReadSnapshot parses the snapshot file at path.
func ReadSnapshot(path string) ([]SnapshotEntry, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	entries, bad := ParseSnapshot(f)
	return entries, bad, nil
}
