// Package id provides ULID based identifiers.
//
// Identifiers are lexicographically sortable and carry a short prefix
// naming their kind (pjq_*, req_*, page_*), which keeps logs readable.
// Every prefixed identifier is also a valid JavaScript identifier, so it
// can be used directly as a page global.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies an API request
type RequestID string

// PageID identifies a page held by a pool or session
type PageID string

const (
	GlobalPrefix  = "pjq"
	RequestPrefix = "req"
	PagePrefix    = "page"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewGlobalName returns a fresh name for the page global the library is
// injected under. It never collides with jQuery or $.
func NewGlobalName() string {
	return Default().GenerateWithPrefix(GlobalPrefix)
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewPageID generates a new page ID
func NewPageID() PageID {
	return PageID(Default().GenerateWithPrefix(PagePrefix))
}

func (id RequestID) String() string { return string(id) }
func (id PageID) String() string    { return string(id) }

var jsIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// IsGlobalName reports whether name can be used as a page global.
func IsGlobalName(name string) bool {
	return jsIdentifier.MatchString(name) && name != "jQuery" && name != "$"
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
