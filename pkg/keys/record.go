package keys

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// SecretPrefix marks a string as a relay credential.
const SecretPrefix = "sk-"

// secretBytes is the amount of randomness in a generated secret.
const secretBytes = 32

var (
	// ErrNotFound is returned when no record matches a secret or name.
	ErrNotFound = errors.New("api key not found")

	// ErrDuplicateName is returned by Create when the name is already taken.
	ErrDuplicateName = errors.New("api key name already exists")

	// ErrInvalidName is returned by Create for names the stores cannot represent.
	ErrInvalidName = errors.New("invalid api key name")

	// ErrInvalidSecret is returned when a secret lacks the credential prefix.
	ErrInvalidSecret = errors.New("api key must start with " + SecretPrefix)
)

// Record is a point-in-time snapshot of one credential.
type Record struct {
	Secret      string
	Name        string
	Description string
	CreatedAt   time.Time

	// UsageCount is the number of successful validations.
	UsageCount int64

	// LastUsed is the time of the most recent successful validation.
	// The zero time means the key was never used.
	LastUsed time.Time

	Active bool
}

// Normalize trims surrounding whitespace from a presented secret.
func Normalize(raw string) string {
	return strings.TrimSpace(raw)
}

// GenerateSecret returns a new credential: the prefix followed by the
// unpadded URL-safe base64 encoding of 32 random bytes.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidateName reports whether name can be stored by every backend.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if strings.ContainsAny(name, ":\r\n") {
		return fmt.Errorf("%w: %q must not contain ':' or line breaks", ErrInvalidName, name)
	}
	if strings.HasPrefix(strings.TrimSpace(name), "#") {
		return fmt.Errorf("%w: %q must not start with '#'", ErrInvalidName, name)
	}
	return nil
}

// sanitizeDescription flattens line breaks so the description fits on one line.
func sanitizeDescription(d string) string {
	d = strings.ReplaceAll(d, "\r", " ")
	d = strings.ReplaceAll(d, "\n", " ")
	return strings.TrimSpace(d)
}

// entry is the registry's mutable form of a Record. Identity fields and
// active are guarded by the registry lock; usage counters are atomic so
// validation can run under the read lock.
type entry struct {
	secret      string
	name        string
	description string
	createdAt   time.Time
	active      bool

	usage    atomic.Int64
	lastUsed atomic.Int64 // unix nanoseconds, 0 when unused
}

func newEntry(r Record) *entry {
	e := &entry{
		secret:      r.Secret,
		name:        r.Name,
		description: r.Description,
		createdAt:   r.CreatedAt,
		active:      r.Active,
	}
	e.usage.Store(r.UsageCount)
	if !r.LastUsed.IsZero() {
		e.lastUsed.Store(r.LastUsed.UnixNano())
	}
	return e
}

// touch records one use at now. last_used only moves forward.
func (e *entry) touch(now time.Time) {
	e.usage.Add(1)
	ts := now.UnixNano()
	for {
		prev := e.lastUsed.Load()
		if prev >= ts {
			return
		}
		if e.lastUsed.CompareAndSwap(prev, ts) {
			return
		}
	}
}

func (e *entry) snapshot() Record {
	r := Record{
		Secret:      e.secret,
		Name:        e.name,
		Description: e.description,
		CreatedAt:   e.createdAt,
		UsageCount:  e.usage.Load(),
		Active:      e.active,
	}
	if ns := e.lastUsed.Load(); ns != 0 {
		r.LastUsed = time.Unix(0, ns)
	}
	return r
}
