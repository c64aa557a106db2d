// Package api serves a read-only view of the tracker's files and history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/lostfound/internal/database"
	"github.com/kdimtricp/lostfound/internal/logger"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/kdimtricp/lostfound/internal/persistence"
	"github.com/kdimtricp/lostfound/internal/storage"
)

// History is the read side of the lost-object history.
type History interface {
	List(ctx context.Context, f database.ListFilter) ([]models.LostObject, error)
	ByIdentity(ctx context.Context, identityID string) ([]models.LostObject, error)
}

type Config struct {
	SnapshotPath string
	Frames       *storage.FrameStore
	Artifacts    *storage.LocalStorage
	// History is nil when no database is configured.
	History        History
	IgnoredClasses []string
	Logger         *logger.Logger
}

// Server never writes: it reads the snapshot and artifacts the engine
// replaces atomically, so it needs no coordination with the engine.
type Server struct {
	snapshotPath string
	frames       *storage.FrameStore
	artifacts    *storage.LocalStorage
	history      History
	ignored      []string
	log          *logger.Logger
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	ignored := cfg.IgnoredClasses
	if ignored == nil {
		ignored = []string{}
	}
	return &Server{
		snapshotPath: cfg.SnapshotPath,
		frames:       cfg.Frames,
		artifacts:    cfg.Artifacts,
		history:      cfg.History,
		ignored:      ignored,
		log:          log,
	}
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// ListObjectsHandler returns the active identities keyed by id.
func (s *Server) ListObjectsHandler(w http.ResponseWriter, r *http.Request) {
	objects, ok := s.readObjects(w)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, objects)
}

func (s *Server) ObjectsByClassHandler(w http.ResponseWriter, r *http.Request) {
	objects, ok := s.readObjects(w)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	filtered := make(map[string]models.DetectionRecord)
	for id, det := range objects {
		if det.Name == name {
			filtered[id] = det
		}
	}
	s.writeJSON(w, http.StatusOK, filtered)
}

func (s *Server) ObjectHandler(w http.ResponseWriter, r *http.Request) {
	objects, ok := s.readObjects(w)
	if !ok {
		return
	}
	det, found := objects[chi.URLParam(r, "id")]
	if !found {
		s.writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, det)
}

func (s *Server) FrameHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid frame number")
		return
	}
	if s.frames == nil {
		s.writeError(w, http.StatusNotFound, "Frame not found")
		return
	}
	name, err := s.frames.Find(n)
	if err != nil {
		if errors.Is(err, storage.ErrFrameNotFound) {
			s.writeError(w, http.StatusNotFound, "Frame not found")
			return
		}
		s.log.Error("find frame", "frame", n, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error accessing frame")
		return
	}
	s.serveFile(w, r, s.frames.LocalStorage, name)
}

// ListLostHandler lists the lost-object history, most recent first. The
// query parameters class, pending and limit narrow the result.
func (s *Server) ListLostHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "Lost-object history is disabled")
		return
	}
	q := r.URL.Query()
	f := database.ListFilter{Name: q.Get("class")}
	if v := q.Get("pending"); v != "" {
		pending, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid pending flag")
			return
		}
		f.Pending = pending
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		f.Limit = limit
	}

	objs, err := s.history.List(r.Context(), f)
	if err != nil {
		s.log.Error("list lost objects", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error loading lost objects")
		return
	}
	if objs == nil {
		objs = []models.LostObject{}
	}
	s.writeJSON(w, http.StatusOK, objs)
}

func (s *Server) LostByIdentityHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "Lost-object history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	objs, err := s.history.ByIdentity(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		s.log.Error("load lost object", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error loading lost object")
		return
	}
	s.writeJSON(w, http.StatusOK, objs)
}

type artifactView struct {
	Key      string `json:"key"`
	Image    string `json:"image,omitempty"`
	Metadata string `json:"metadata,omitempty"`
}

// ListArtifactsHandler lists the artifact pairs currently on disk.
func (s *Server) ListArtifactsHandler(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		s.writeJSON(w, http.StatusOK, []artifactView{})
		return
	}
	files, err := s.artifacts.List("*_frame*")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeJSON(w, http.StatusOK, []artifactView{})
			return
		}
		s.log.Error("list artifacts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error listing artifacts")
		return
	}

	views := []artifactView{}
	index := make(map[string]int)
	for _, f := range files {
		ext := filepath.Ext(f.Name)
		key := strings.TrimSuffix(f.Name, ext)
		if !persistence.IsArtifactKey(key) || (ext != persistence.ImageExt && ext != persistence.MetadataExt) {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(views)
			index[key] = i
			views = append(views, artifactView{Key: key})
		}
		if ext == persistence.ImageExt {
			views[i].Image = f.Name
		} else {
			views[i].Metadata = f.Name
		}
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) ArtifactHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ext := filepath.Ext(name)
	if s.artifacts == nil || (ext != persistence.ImageExt && ext != persistence.MetadataExt) ||
		!persistence.IsArtifactKey(strings.TrimSuffix(name, ext)) {
		s.writeError(w, http.StatusNotFound, "Artifact not found")
		return
	}
	s.serveFile(w, r, s.artifacts, name)
}

func (s *Server) IgnoredClassesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"ignoredClasses": s.ignored})
}

// readObjects loads the snapshot. Malformed lines are skipped, as the file is
// only ever replaced whole.
func (s *Server) readObjects(w http.ResponseWriter) (map[string]models.DetectionRecord, bool) {
	entries, bad, err := persistence.ReadSnapshot(s.snapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeError(w, http.StatusServiceUnavailable, "Snapshot not written yet")
			return nil, false
		}
		s.log.Error("read snapshot", "path", s.snapshotPath, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error reading snapshot")
		return nil, false
	}
	for _, e := range bad {
		s.log.Warn("snapshot line skipped", "error", e)
	}
	objects := make(map[string]models.DetectionRecord, len(entries))
	for _, e := range entries {
		objects[e.ID] = e.Detection
	}
	return objects, true
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, store *storage.LocalStorage, name string) {
	file, err := store.OpenFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
			s.writeError(w, http.StatusNotFound, "File not found")
			return
		}
		s.log.Error("open file", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error accessing file")
		return
	}
	defer file.Close()

	stat, err := file.(interface{ Stat() (os.FileInfo, error) }).Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Error accessing file")
		return
	}
	// ServeContent sniffs the content type from the extension and handles Range requests.
	http.ServeContent(w, r, name, stat.ModTime(), file)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
