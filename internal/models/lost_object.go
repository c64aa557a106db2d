package models

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LostObject is the history row kept for every Lost transition.
type LostObject struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	IdentityID   string     `json:"identityId"`
	Name         string     `json:"name"`
	ClassID      int        `json:"classId"`
	Frame        int        `json:"frame"`
	Confidence   float64    `json:"confidence"`
	Color        string     `json:"color"`
	BBox         BBox       `json:"bbox"`
	LostAt       time.Time  `json:"lostAt"`
	ArtifactKey  string     `json:"artifactKey"`
	ImagePath    string     `json:"imagePath,omitempty"`
	MetadataPath string     `json:"metadataPath,omitempty"`
	Reactivated  *time.Time `json:"reactivatedAt,omitempty"`
	// ReactivatedFrame is the frame of the detection that found the object again.
	ReactivatedFrame *int `json:"reactivatedFrame,omitempty"`
}

func NewLostObject(sessionID string, rec LostRecord) *LostObject {
	ident := rec.Identity
	obj := &LostObject{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		IdentityID:  ident.ID,
		Name:        ident.Name,
		ClassID:     ident.ClassID,
		Frame:       ident.LastSeenFrame,
		Confidence:  ident.Confidence,
		Color:       ident.Detection.Color.String(),
		BBox:        ident.LastSeenBBox,
		LostAt:      rec.LostAt,
		ArtifactKey: rec.Key(),
	}
	if ident.Signature != nil {
		obj.Color = ident.Signature.String()
	}
	for _, p := range rec.ArtifactPaths {
		if filepath.Ext(p) == ".txt" {
			obj.MetadataPath = p
		} else {
			obj.ImagePath = p
		}
	}
	return obj
}
