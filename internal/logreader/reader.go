// Package logreader turns the detector's append-only log into frame events.
package logreader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"strings"

	"github.com/kdimtricp/lostfound/internal/models"
)

type Strategy string

const (
	// StrategyTail reads only the bytes appended since the previous poll.
	StrategyTail Strategy = "incremental-tail"
	// StrategyRebuild rereads the whole file on every poll.
	StrategyRebuild Strategy = "full-rebuild"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyTail, "tail", "":
		return StrategyTail, nil
	case StrategyRebuild, "rebuild":
		return StrategyRebuild, nil
	default:
		return "", fmt.Errorf("unknown read strategy %q (want %q or %q)", s, StrategyTail, StrategyRebuild)
	}
}

type Numbering string

const (
	// NumberingAuto locks onto the scheme of the first parsed line.
	NumberingAuto       Numbering = "auto"
	NumberingExplicit   Numbering = "explicit"
	// NumberingPositional numbers lines 1, 2, 3... from the start of the log.
	// In tail mode the count carries over between polls rather than
	// restarting at 1 on each read, so frame numbers never go backwards.
	// A rebuild or Rewind starts it over.
	NumberingPositional Numbering = "positional"
)

func ParseNumbering(s string) (Numbering, error) {
	switch Numbering(strings.ToLower(strings.TrimSpace(s))) {
	case NumberingAuto, "":
		return NumberingAuto, nil
	case NumberingExplicit:
		return NumberingExplicit, nil
	case NumberingPositional:
		return NumberingPositional, nil
	default:
		return "", fmt.Errorf("unknown frame numbering %q", s)
	}
}

var (
	ErrLogMissing      = errors.New("detection log missing")
	ErrMixedNumbering  = errors.New("mixed frame numbering schemes")
	ErrLineTooLong     = errors.New("line exceeds read limit")
	ErrFrameRegression = errors.New("frame number went backwards")
)

const DefaultMaxReadBytes = 16 << 20

type Options struct {
	Strategy  Strategy
	Numbering Numbering
	// MaxReadBytes bounds how much of the log one tail poll reads, and the
	// length of a single line in either strategy.
	MaxReadBytes int64
}

// Warning records a line that was skipped, or partly skipped, while reading.
type Warning struct {
	Line   int
	Offset int64
	Text   string
	Err    error
}

func (w Warning) Error() string {
	return fmt.Sprintf("line %d (offset %d): %v", w.Line, w.Offset, w.Err)
}

// Reader parses the detection log. It is not safe for concurrent use; the
// engine loop owns it.
type Reader struct {
	path string
	opts Options

	offset    int64
	line      int
	lastFrame int
	scheme    Numbering

	warnings []Warning
	err      error
}

func New(path string, opts Options) *Reader {
	if opts.Strategy == "" {
		opts.Strategy = StrategyTail
	}
	if opts.Numbering == "" {
		opts.Numbering = NumberingAuto
	}
	if opts.MaxReadBytes <= 0 {
		opts.MaxReadBytes = DefaultMaxReadBytes
	}
	return &Reader{path: path, opts: opts, lastFrame: -1}
}

func (r *Reader) Path() string { return r.path }

func (r *Reader) Strategy() Strategy { return r.opts.Strategy }

// Offset is the byte offset just past the last consumed line.
func (r *Reader) Offset() int64 { return r.offset }

// Rewind resets the cursor to the start of the log.
func (r *Reader) Rewind() {
	r.offset = 0
	r.line = 0
	r.lastFrame = -1
	r.scheme = ""
}

// Err returns the error that stopped the last iteration of Events, if any.
func (r *Reader) Err() error { return r.err }

// Warnings returns and clears the warnings collected so far.
func (r *Reader) Warnings() []Warning {
	w := r.warnings
	r.warnings = nil
	return w
}

// Events yields the frame events of the log in file order. In tail mode it
// resumes after the last consumed line and stops at an unterminated final
// line; in rebuild mode it starts over from the first byte. Malformed lines are
// skipped and recorded as warnings. Check Err after ranging.
func (r *Reader) Events(ctx context.Context) iter.Seq[models.FrameEvent] {
	return func(yield func(models.FrameEvent) bool) {
		r.err = nil
		if r.opts.Strategy == StrategyRebuild {
			r.Rewind()
		}

		f, err := os.Open(r.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.err = fmt.Errorf("%w: %s", ErrLogMissing, r.path)
			} else {
				r.err = fmt.Errorf("open detection log: %w", err)
			}
			return
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			r.err = fmt.Errorf("stat detection log: %w", err)
			return
		}
		if st.Size() < r.offset {
			r.warn("", fmt.Errorf("log shrank from %d to %d bytes, reading from the start", r.offset, st.Size()))
			r.Rewind()
		}
		if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
			r.err = fmt.Errorf("seek detection log: %w", err)
			return
		}

		// Tail polls are bounded in total and catch up over later polls. A
		// rebuild must reach the end of the file every time, so only single
		// lines are bounded there.
		var src io.Reader = f
		if r.opts.Strategy == StrategyTail {
			src = io.LimitReader(f, r.opts.MaxReadBytes)
		}
		br := bufio.NewReaderSize(src, 64*1024)
		for {
			if ctx.Err() != nil {
				return
			}
			raw, n, readErr := readLine(br, r.opts.MaxReadBytes)
			if n == 0 {
				if readErr != nil && !errors.Is(readErr, io.EOF) {
					r.err = fmt.Errorf("read detection log: %w", readErr)
				}
				return
			}
			if errors.Is(readErr, ErrLineTooLong) {
				r.offset += n
				r.line++
				r.warn(truncate(raw), ErrLineTooLong)
				continue
			}

			complete := strings.HasSuffix(raw, "\n")
			if !complete && r.opts.Strategy == StrategyTail {
				if int64(len(raw)) < r.opts.MaxReadBytes {
					// The detector is still writing this line.
					return
				}
				r.offset += int64(len(raw))
				r.line++
				r.warn(truncate(raw), ErrLineTooLong)
				return
			}

			r.offset += int64(len(raw))
			ev, ok := r.parse(raw)
			if ok && !yield(ev) {
				return
			}
			if readErr != nil {
				return
			}
		}
	}
}

// readLine reads one line including its newline. A line longer than limit is
// consumed to its end and reported as ErrLineTooLong with only its first limit
// bytes returned; n always counts every byte consumed.
func readLine(br *bufio.Reader, limit int64) (string, int64, error) {
	var (
		buf  []byte
		n    int64
		over bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		n += int64(len(chunk))
		if !over {
			if int64(len(buf)+len(chunk)) > limit {
				buf = append(buf, chunk[:limit-int64(len(buf))]...)
				over = true
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if over {
			return string(buf), n, ErrLineTooLong
		}
		return string(buf), n, err
	}
}

func (r *Reader) parse(raw string) (models.FrameEvent, bool) {
	r.line++
	text := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(text) == "" {
		return models.FrameEvent{}, false
	}

	label, payload, err := splitLine(text)
	if err != nil {
		r.warn(text, err)
		return models.FrameEvent{}, false
	}

	frame, explicit := parseFrameLabel(label)
	scheme := NumberingPositional
	if explicit {
		scheme = NumberingExplicit
	}
	switch r.opts.Numbering {
	case NumberingPositional:
		scheme = NumberingPositional
	case NumberingAuto:
		if r.scheme == "" {
			r.scheme = scheme
		}
	default:
		r.scheme = r.opts.Numbering
	}
	if r.scheme != "" && r.scheme != scheme {
		r.warn(text, fmt.Errorf("%w: %s line in a %s log", ErrMixedNumbering, scheme, r.scheme))
		return models.FrameEvent{}, false
	}
	if scheme == NumberingPositional {
		frame = r.line
	}

	records, skipped, err := parsePayload(payload)
	if err != nil {
		r.warn(text, err)
		return models.FrameEvent{}, false
	}
	for _, e := range skipped {
		r.warn(text, e)
	}

	if frame < r.lastFrame {
		r.warn(text, fmt.Errorf("%w: %d after %d", ErrFrameRegression, frame, r.lastFrame))
	} else {
		r.lastFrame = frame
	}

	for i := range records {
		records[i].Frame = frame
	}
	return models.FrameEvent{Frame: frame, Detections: records, Offset: r.offset}, true
}

func (r *Reader) warn(text string, err error) {
	r.warnings = append(r.warnings, Warning{Line: r.line, Offset: r.offset, Text: truncate(text), Err: err})
}

func truncate(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
