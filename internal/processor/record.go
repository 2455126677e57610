package processor

import (
	"strings"
	"time"
	"unicode"
)

// Record is one parsed input record, keyed by field name.
type Record map[string]any

const (
	// MetadataKey is the reserved key processing metadata is attached under.
	// NormalizeKey strips leading underscores from user fields, so no input
	// field can ever normalize to it.
	MetadataKey = "_metadata"

	// ProcessorVersion is stamped into every output record's metadata.
	ProcessorVersion = "1.0.0"

	// timestampLayout is ISO-8601 UTC with millisecond precision.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Metadata is attached once per file and shared by all of its records.
type Metadata struct {
	ProcessedAt      string `json:"processed_at"`
	Environment      string `json:"environment"`
	ProcessorVersion string `json:"processor_version"`
}

func NewMetadata(now time.Time, environment string) Metadata {
	return Metadata{
		ProcessedAt:      now.UTC().Format(timestampLayout),
		Environment:      environment,
		ProcessorVersion: ProcessorVersion,
	}
}

// NormalizeKey lowercases a field name and collapses every run of
// non-alphanumeric characters into a single underscore. Leading and trailing
// runs are dropped entirely.
func NormalizeKey(key string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(key) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// Normalize rewrites every key of rec to its normalized form and drops keys
// whose value is nil or an empty string. Two distinct raw keys can normalize
// to the same name; the surviving value is whichever is visited last, which
// for map input is unspecified.
func Normalize(rec Record) Record {
	out := make(Record, len(rec))
	for key, value := range rec {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		normalized := NormalizeKey(key)
		if normalized == "" {
			continue
		}
		out[normalized] = value
	}
	return out
}

// Enrich attaches the per-file metadata under the reserved key.
func Enrich(rec Record, md Metadata) Record {
	rec[MetadataKey] = md
	return rec
}
