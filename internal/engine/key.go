package engine

import (
	"strings"

	"gridalert/internal/domain"
)

// CanonicalKind folds a reported fault kind into its canonical taxonomy
// spelling so the dedup key is stable across reporter casing and separators.
// Params: raw kind value from transport.
// Returns: lower-case snake_case kind token.
func CanonicalKind(raw domain.Kind) domain.Kind {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return domain.Kind(b.String())
}

// CanonicalSource normalizes a source identifier for the dedup key. Device
// identifiers are exact, so only surrounding whitespace is stripped.
// Params: raw source id from transport.
// Returns: trimmed source id.
func CanonicalSource(raw string) string {
	return strings.TrimSpace(raw)
}
