// Package jsmodule reads the legacy quiz modules of the form
//
//	// comment
//	export const questions = [
//	  { q: "...", options: ["a", "b",], correct: 0, },
//	];
//
// The array literal is normalised (comments dropped, strings re-quoted, trailing
// commas removed) and decoded as a YAML flow sequence, which accepts unquoted keys.
package jsmodule

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoExport is returned when the source has no `export const questions =` binding.
	ErrNoExport = errors.New("no questions export found")
	// ErrUnterminated is returned when a string, comment or bracket never closes.
	ErrUnterminated = errors.New("unterminated literal")

	exportPattern = regexp.MustCompile(`export\s+const\s+questions\s*=\s*`)
)

// Decode extracts the questions array and returns it wrapped as {"questions": [...]},
// with values in encoding/json shapes (map[string]any, []any, float64, string, bool, nil).
func Decode(src []byte) (map[string]any, error) {
	questions, err := Questions(src)
	if err != nil {
		return nil, err
	}
	return map[string]any{"questions": questions}, nil
}

// Questions extracts and decodes the questions array literal.
func Questions(src []byte) ([]any, error) {
	literal, err := extractArray(string(src))
	if err != nil {
		return nil, err
	}
	normalized, err := normalize(literal)
	if err != nil {
		return nil, err
	}

	var raw []any
	if err := yaml.Unmarshal([]byte(normalized), &raw); err != nil {
		return nil, fmt.Errorf("decode questions literal: %w", err)
	}

	// Round-trip through JSON so callers see the same types as for .json quiz files.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode questions: %w", err)
	}
	var out []any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("re-decode questions: %w", err)
	}
	return out, nil
}

func extractArray(src string) (string, error) {
	loc := exportPattern.FindStringIndex(src)
	if loc == nil {
		return "", ErrNoExport
	}
	s := &scanner{src: []rune(src[loc[1]:])}
	s.skipTrivia()
	if s.peek() != '[' {
		return "", fmt.Errorf("%w: questions is not an array literal", ErrNoExport)
	}
	start := s.pos
	depth := 0
	for !s.done() {
		switch r := s.peek(); {
		case r == '"' || r == '\'' || r == '`':
			if _, err := s.readString(); err != nil {
				return "", err
			}
			continue
		case s.atComment():
			if err := s.skipComment(); err != nil {
				return "", err
			}
			continue
		case r == '[' || r == '{' || r == '(':
			depth++
		case r == ']' || r == '}' || r == ')':
			depth--
			if depth == 0 {
				s.pos++
				return string(s.src[start:s.pos]), nil
			}
		}
		s.pos++
	}
	return "", fmt.Errorf("%w: questions array", ErrUnterminated)
}

func normalize(literal string) (string, error) {
	s := &scanner{src: []rune(literal)}
	var out strings.Builder
	out.Grow(len(literal))

	for !s.done() {
		r := s.peek()
		switch {
		case s.atComment():
			if err := s.skipComment(); err != nil {
				return "", err
			}
			out.WriteByte(' ')
		case r == '"' || r == '\'' || r == '`':
			value, err := s.readString()
			if err != nil {
				return "", err
			}
			out.WriteString(strconv.Quote(value))
		case r == ',':
			s.pos++
			save := s.pos
			s.skipTrivia()
			if next := s.peek(); next != ']' && next != '}' {
				out.WriteByte(',')
			}
			s.pos = save
		case r == ':':
			s.pos++
			out.WriteString(": ")
		case isIdentStart(r):
			word := s.readIdent()
			if word == "undefined" {
				word = "null"
			}
			out.WriteString(word)
		case unicode.IsSpace(r) && r != '\n':
			out.WriteByte(' ')
			s.pos++
		default:
			out.WriteRune(r)
			s.pos++
		}
	}
	return out.String(), nil
}

type scanner struct {
	src []rune
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() rune {
	if s.done() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) peekAt(offset int) rune {
	if s.pos+offset >= len(s.src) {
		return 0
	}
	return s.src[s.pos+offset]
}

func (s *scanner) atComment() bool {
	return s.peek() == '/' && (s.peekAt(1) == '/' || s.peekAt(1) == '*')
}

func (s *scanner) skipComment() error {
	if s.peekAt(1) == '/' {
		for !s.done() && s.peek() != '\n' {
			s.pos++
		}
		return nil
	}
	s.pos += 2
	for !s.done() {
		if s.peek() == '*' && s.peekAt(1) == '/' {
			s.pos += 2
			return nil
		}
		s.pos++
	}
	return fmt.Errorf("%w: block comment", ErrUnterminated)
}

func (s *scanner) skipTrivia() {
	for !s.done() {
		if unicode.IsSpace(s.peek()) {
			s.pos++
			continue
		}
		if s.atComment() {
			if err := s.skipComment(); err != nil {
				return
			}
			continue
		}
		return
	}
}

func (s *scanner) readIdent() string {
	start := s.pos
	for !s.done() && isIdentPart(s.peek()) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

// readString consumes a quoted JS string and returns its unescaped value.
func (s *scanner) readString() (string, error) {
	quote := s.peek()
	s.pos++
	var b strings.Builder
	for !s.done() {
		r := s.peek()
		switch {
		case r == quote:
			s.pos++
			return b.String(), nil
		case r == '\\':
			s.pos++
			if s.done() {
				return "", fmt.Errorf("%w: string", ErrUnterminated)
			}
			if err := s.readEscape(&b); err != nil {
				return "", err
			}
		case r == '\n' && quote != '`':
			return "", fmt.Errorf("%w: string", ErrUnterminated)
		default:
			b.WriteRune(r)
			s.pos++
		}
	}
	return "", fmt.Errorf("%w: string", ErrUnterminated)
}

func (s *scanner) readEscape(b *strings.Builder) error {
	r := s.peek()
	s.pos++
	switch r {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case '\n':
		// line continuation
	case 'x', 'u':
		n := 2
		if r == 'u' {
			n = 4
			if s.peek() == '{' {
				end := s.pos
				for end < len(s.src) && s.src[end] != '}' {
					end++
				}
				code, err := strconv.ParseUint(string(s.src[s.pos+1:end]), 16, 32)
				if err != nil || end >= len(s.src) {
					return fmt.Errorf("invalid unicode escape")
				}
				b.WriteRune(rune(code))
				s.pos = end + 1
				return nil
			}
		}
		if s.pos+n > len(s.src) {
			return fmt.Errorf("%w: escape", ErrUnterminated)
		}
		code, err := strconv.ParseUint(string(s.src[s.pos:s.pos+n]), 16, 32)
		if err != nil {
			return fmt.Errorf("invalid \\%c escape", r)
		}
		b.WriteRune(rune(code))
		s.pos += n
	default:
		b.WriteRune(r)
	}
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
