package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/goccy/go-json"
)

// keyVersion prefixes every cache key. The "v1|" namespace is reserved
// for keys built here; operators must not write under it by other means.
const keyVersion = "v1"

// KeyGenerator builds deterministic cache keys. Inputs above the hash
// threshold are collapsed to a fingerprint so raw text never appears in
// a key.
type KeyGenerator struct {
	textHashThreshold int
	sizeTiers         map[string]int
}

// NewKeyGenerator creates a generator. threshold <= 0 disables hashing
// (text is always embedded verbatim); nil tiers disable tier metrics.
func NewKeyGenerator(textHashThreshold int, sizeTiers map[string]int) *KeyGenerator {
	return &KeyGenerator{
		textHashThreshold: textHashThreshold,
		sizeTiers:         sizeTiers,
	}
}

// BuildKey derives the cache key for one request. Deterministic and
// stable under option insertion order. question participates only when
// non-empty (the qa operation).
func (g *KeyGenerator) BuildKey(operation, text string, options map[string]any, question string) string {
	var b strings.Builder
	b.Grow(len(keyVersion) + len(operation) + 64)

	b.WriteString(keyVersion)
	b.WriteByte('|')
	b.WriteString(operation)
	b.WriteByte('|')

	if g.textHashThreshold > 0 && len(text) > g.textHashThreshold {
		sum := sha256.Sum256([]byte(text))
		b.WriteString(hex.EncodeToString(sum[:])[:32])
	} else {
		b.WriteString(text)
	}
	b.WriteByte('|')

	b.WriteString(fingerprintOptions(options))
	b.WriteByte('|')

	if question != "" {
		sum := sha256.Sum256([]byte(question))
		b.WriteString(hex.EncodeToString(sum[:])[:16])
	}

	return b.String()
}

// fingerprintOptions hashes the canonical JSON form of the option map.
// Map keys marshal in sorted order, which makes the encoding canonical.
func fingerprintOptions(options map[string]any) string {
	if len(options) == 0 {
		options = map[string]any{}
	}
	canonical, err := json.Marshal(options)
	if err != nil {
		// Option values are scalars per the request schema; a marshal
		// failure here means the handler let something else through.
		canonical = []byte("{}")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}

// SizeTier classifies input length for metrics. The tier never affects
// the key.
func (g *KeyGenerator) SizeTier(text string) string {
	if len(g.sizeTiers) == 0 {
		return ""
	}
	n := len(text)
	switch {
	case n <= g.sizeTiers["small"]:
		return "small"
	case n <= g.sizeTiers["medium"]:
		return "medium"
	case n <= g.sizeTiers["large"]:
		return "large"
	default:
		return "xlarge"
	}
}
