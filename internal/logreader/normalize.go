package logreader

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tailscale/hujson"
)

var ErrUnterminatedString = errors.New("unterminated string")

// Normalize rewrites a loosely JSON-like detection payload into standard JSON.
//
// The detector sometimes logs Python reprs instead of JSON, so Normalize
// accepts single-quoted strings, unquoted object keys and the literals
// True/False/None. Trailing commas and comments are removed by hujson.
func Normalize(payload string) ([]byte, error) {
	var b strings.Builder
	b.Grow(len(payload) + 16)

	s := payload
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			end, err := copyString(&b, s, i)
			if err != nil {
				return nil, err
			}
			i = end
		case c == '-' || c == '.' || isDigit(c):
			j := i + 1
			for j < len(s) && isNumberByte(s[j]) {
				j++
			}
			b.WriteString(s[i:j])
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			word := s[i:j]
			if nextNonSpace(s, j) == ':' {
				b.WriteByte('"')
				b.WriteString(word)
				b.WriteByte('"')
			} else {
				b.WriteString(literal(word))
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}

	out, err := hujson.Standardize([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	return out, nil
}

// copyString writes the string literal starting at s[start] as a double-quoted
// JSON string and returns the index just past its closing quote.
func copyString(b *strings.Builder, s string, start int) (int, error) {
	quote := s[start]
	b.WriteByte('"')
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			i++
		case c == quote:
			b.WriteByte('"')
			return i + 1, nil
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	return 0, fmt.Errorf("%w at offset %d", ErrUnterminatedString, start)
}

func literal(word string) string {
	switch word {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None":
		return "null"
	}
	return word
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		if !unicode.IsSpace(rune(s[i])) {
			return s[i]
		}
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNumberByte(c byte) bool {
	return isDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
