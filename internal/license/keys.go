package license

import (
	"crypto/rand"
	"strings"
)

// keyAlphabet excludes the confusable characters 0, O, I, and 1.
const keyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	keyPrefix  = "IPV-"
	segmentLen = 5
)

// KeyFormat selects which historical key shape to issue.
type KeyFormat string

const (
	// FormatShort is the legacy shape: three segments, no prefix
	// (XXXXX-XXXXX-XXXXX). Still issued for backward compatibility.
	FormatShort KeyFormat = "short"
	// FormatLong is the current shape: IPV- prefix and five segments.
	FormatLong KeyFormat = "long"
)

// randomKey produces one candidate key in the given format. Uniqueness is
// the caller's problem.
func randomKey(format KeyFormat) string {
	segments := 5
	prefix := keyPrefix
	if format == FormatShort {
		segments = 3
		prefix = ""
	}

	buf := make([]byte, segments*segmentLen)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	var b strings.Builder
	b.WriteString(prefix)
	for i, r := range buf {
		if i > 0 && i%segmentLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(keyAlphabet[int(r)%len(keyAlphabet)])
	}
	return b.String()
}

// KeyVariants expands a raw key into every stored form it could match.
//
// Two key shapes coexist: the legacy bare three-segment form and the
// prefixed five-segment form. Lookups must therefore try the normalized
// input both with and without the prefix, and for long keys also the
// three-segment truncation in both forms. The result always starts with
// the normalized input itself.
func KeyVariants(raw string) []string {
	norm := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if norm == "" {
		return nil
	}

	bare := strings.TrimPrefix(norm, keyPrefix)

	variants := []string{norm}
	add := func(v string) {
		for _, existing := range variants {
			if existing == v {
				return
			}
		}
		variants = append(variants, v)
	}

	add(bare)
	add(keyPrefix + bare)

	if parts := strings.Split(bare, "-"); len(parts) > 3 {
		trunc := strings.Join(parts[:3], "-")
		add(trunc)
		add(keyPrefix + trunc)
	}

	return variants
}

// canonicalKey reduces a raw key to its bare normalized form, which is
// shared by every variant of the same key.
func canonicalKey(raw string) string {
	norm := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	return strings.TrimPrefix(norm, keyPrefix)
}

// NormalizeDomain canonicalizes a site URL or domain for equality checks:
// lowercase, scheme stripped, leading "www." stripped, trailing slash
// trimmed.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimRight(d, "/")
}
