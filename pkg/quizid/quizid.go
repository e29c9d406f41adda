// Package quizid derives the short identifiers used for quizzes and subjects.
//
// An ID is a pure function of the canonical slash-separated path relative to the
// data directory (for example "quizzes/Engineering/2/1/Networks/quiz-a.json"), so
// rebuilding the manifest never changes an existing ID. Changing the algorithm
// changes every ID and breaks shared links.
package quizid

import (
	"crypto/sha256"
	"path"
	"regexp"
	"strings"
)

const (
	// Charset is the RFC 4648 Base32 alphabet.
	Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	// Length is the number of characters in every ID.
	Length = 8
)

var pattern = regexp.MustCompile(`^[A-Z2-7]{8}$`)

// Generate returns the ID for a canonical relative path.
func Generate(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(Charset[int(sum[i])%len(Charset)])
	}
	return b.String()
}

// Valid reports whether id has the shape produced by Generate.
func Valid(id string) bool {
	return pattern.MatchString(id)
}

// CanonicalPath joins segments with forward slashes and cleans the result,
// so OS-specific separators never leak into an ID.
func CanonicalPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.ReplaceAll(s, "\\", "/")
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return path.Clean(strings.Join(parts, "/"))
}
