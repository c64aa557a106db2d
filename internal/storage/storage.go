package storage

import (
	"io"
	"time"
)

type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage is a flat directory of named files. Names must not escape it.
type Storage interface {
	SaveFile(name string, data []byte) (string, error)
	OpenFile(name string) (io.ReadSeekCloser, error)
	DeleteFile(name string) error
	List(pattern string) ([]FileInfo, error)
}
