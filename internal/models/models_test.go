package models

import (
	"encoding/json"
	"testing"

	"github.com/kdimtricp/lostfound/internal/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorValueJSON(t *testing.T) {
	var rec DetectionRecord
	require.NoError(t, json.Unmarshal([]byte(`{"class":1,"name":"dog","color":"#112233","bbox":{"xmin":0,"ymin":0,"xmax":10,"ymax":10}}`), &rec))
	assert.Equal(t, "#112233", rec.Color.Hex)
	assert.Nil(t, rec.Confidence)
	assert.Equal(t, 0.0, rec.ConfidenceOr(0))

	require.NoError(t, json.Unmarshal([]byte(`{"name":"cat","color":[0, 0.5, 1],"confidence":0.8}`), &rec))
	assert.Equal(t, []float64{0, 0.5, 1}, rec.Color.Histogram)
	assert.Equal(t, 0.8, rec.ConfidenceOr(0))

	var missing DetectionRecord
	require.NoError(t, json.Unmarshal([]byte(`{"name":"cat"}`), &missing))
	assert.True(t, missing.Color.IsZero())

	err := json.Unmarshal([]byte(`{"name":"cat","color":{"r":1}}`), &missing)
	assert.Error(t, err)

	out, err := json.Marshal(DetectionRecord{Name: "dog", Color: ColorValue{Hex: "#000000"}, Frame: 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"class":0,"name":"dog","bbox":{"xmin":0,"ymin":0,"xmax":0,"ymax":0},"color":"#000000","frame":4}`, string(out))
}

func TestBBoxEmpty(t *testing.T) {
	assert.False(t, BBox{0, 0, 10, 10}.Empty())
	assert.True(t, BBox{5, 0, 5, 10}.Empty())
	assert.True(t, BBox{9, 9, 1, 1}.Empty())
}

func TestCapturedAt(t *testing.T) {
	ts, ok := DetectionRecord{Timestamp: "2024-03-01 12:30:45"}.CapturedAt()
	require.True(t, ok)
	assert.Equal(t, 12, ts.Hour())

	_, ok = DetectionRecord{Timestamp: "yesterday"}.CapturedAt()
	assert.False(t, ok)
	_, ok = DetectionRecord{}.CapturedAt()
	assert.False(t, ok)
}

func TestIdentityObserveMonotonic(t *testing.T) {
	conf := 0.9
	ident := NewIdentity("dog_1", DetectionRecord{Name: "dog", Frame: 10, Confidence: &conf}, color.RGB{})
	assert.Equal(t, 10, ident.FirstSeenFrame)
	assert.Equal(t, StateActive, ident.State)
	assert.Equal(t, 0.9, ident.Confidence)

	ident.Observe(DetectionRecord{Name: "dog", Frame: 7, BBox: BBox{1, 1, 2, 2}}, color.RGB{R: 1})
	assert.Equal(t, 10, ident.LastSeenFrame, "last seen frame never decreases")
	assert.Equal(t, BBox{1, 1, 2, 2}, ident.LastSeenBBox)
	assert.Equal(t, 10, ident.Detection.Frame)

	ident.Observe(DetectionRecord{Name: "dog", Frame: 12}, color.RGB{R: 2})
	assert.Equal(t, 12, ident.LastSeenFrame)
	assert.Equal(t, color.RGB{R: 2}, ident.Signature)
}

func TestLostRecordKey(t *testing.T) {
	rec := LostRecord{Identity: Identity{ID: "dog_1", LastSeenFrame: 3}}
	assert.Equal(t, "dog_1_frame3", rec.Key())
	assert.Equal(t, 3, rec.Frame())
}
