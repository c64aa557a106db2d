package logreader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kdimtricp/lostfound/internal/models"
)

var (
	ErrInvalidLine    = errors.New("line is not of the form '<label>: <payload>'")
	ErrInvalidPayload = errors.New("payload is not a list of detections")
)

var frameLabel = regexp.MustCompile(`(?i)^\s*frame\s+(\d+)\s*$`)

// parseFrameLabel returns the frame number encoded in a "Frame <n>" label.
func parseFrameLabel(label string) (int, bool) {
	m := frameLabel.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitLine splits "<label>: <payload>" at the first ": ".
func splitLine(line string) (string, string, error) {
	label, payload, ok := strings.Cut(line, ": ")
	if !ok {
		return "", "", ErrInvalidLine
	}
	return label, strings.TrimSpace(payload), nil
}

// parsePayload decodes the detection list of one line. A record that does not
// decode is skipped and reported in the returned errors; the rest of the line
// is kept.
func parsePayload(payload string) ([]models.DetectionRecord, []error, error) {
	normalized, err := Normalize(payload)
	if err != nil {
		return nil, nil, err
	}
	normalized = bytes.TrimSpace(normalized)

	var raws []json.RawMessage
	switch {
	case len(normalized) > 0 && normalized[0] == '[':
		if err := json.Unmarshal(normalized, &raws); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	case len(normalized) > 0 && normalized[0] == '{':
		raws = []json.RawMessage{normalized}
	default:
		return nil, nil, ErrInvalidPayload
	}

	records := make([]models.DetectionRecord, 0, len(raws))
	var skipped []error
	for i, raw := range raws {
		var rec models.DetectionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			skipped = append(skipped, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}
