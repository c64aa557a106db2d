package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"
)

// BBox is a detection bounding box in pixel coordinates.
type BBox struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

// Empty reports whether the box has zero area. Inverted boxes count as empty.
func (b BBox) Empty() bool {
	return b.XMax <= b.XMin || b.YMax <= b.YMin
}

// ColorValue holds the color field of a detection. The detector writes either a
// hex string ("#RRGGBB") or a flattened histogram.
type ColorValue struct {
	Hex       string
	Histogram []float64
}

func (c ColorValue) IsZero() bool {
	return c.Hex == "" && len(c.Histogram) == 0
}

func (c ColorValue) String() string {
	if c.Hex != "" {
		return c.Hex
	}
	if len(c.Histogram) > 0 {
		return fmt.Sprintf("histogram[%d]", len(c.Histogram))
	}
	return ""
}

func (c *ColorValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ColorValue{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ColorValue{Hex: strings.TrimSpace(s)}
		return nil
	}
	var hist []float64
	if err := json.Unmarshal(data, &hist); err != nil {
		return fmt.Errorf("color must be a hex string or a numeric histogram: %w", err)
	}
	*c = ColorValue{Histogram: hist}
	return nil
}

func (c ColorValue) MarshalJSON() ([]byte, error) {
	switch {
	case c.Hex != "":
		return json.Marshal(c.Hex)
	case len(c.Histogram) > 0:
		return json.Marshal(c.Histogram)
	default:
		return []byte("null"), nil
	}
}

// DetectionRecord is one object reported by the detector for a frame.
type DetectionRecord struct {
	ClassID    int        `json:"class"`
	Name       string     `json:"name"`
	Confidence *float64   `json:"confidence,omitempty"`
	BBox       BBox       `json:"bbox"`
	Color      ColorValue `json:"color"`
	Timestamp  string     `json:"timestamp,omitempty"`
	Frame      int        `json:"frame"`
}

// ConfidenceOr returns the detection confidence, or def when the detector omitted it.
func (d DetectionRecord) ConfidenceOr(def float64) float64 {
	if d.Confidence == nil {
		return def
	}
	return *d.Confidence
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CapturedAt parses the detector timestamp. The second result is false when the
// timestamp is absent or in an unknown layout.
func (d DetectionRecord) CapturedAt() (time.Time, bool) {
	ts := strings.TrimSpace(d.Timestamp)
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FrameEvent groups the detections logged for one frame.
type FrameEvent struct {
	Frame      int
	Detections []DetectionRecord
	// Offset is the byte offset just past the log line that produced the event.
	Offset int64
}
