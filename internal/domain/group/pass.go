package group

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// DefaultPassValidity is how long an issued pass stays redeemable.
const DefaultPassValidity = 5 * time.Minute

// DefaultCodeLength is the length of generated redemption codes.
const DefaultCodeLength = 8

// maxCodeAttempts bounds redraws when a generated code collides with an
// outstanding one.
const maxCodeAttempts = 10

// Pass is a time-limited capability allowing the requestee's attendance to be
// recorded for one session.
type Pass struct {
	SessionID   shared.SessionID
	RequesterID shared.UserID
	RequesteeID shared.UserID
	Code        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// IsExpired reports whether the validity window has elapsed at now.
func (p Pass) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// StudentID returns the user whose attendance the pass records.
func (p Pass) StudentID() shared.UserID {
	return p.RequesteeID
}

// Equal compares passes field by field.
func (p Pass) Equal(o Pass) bool {
	return p.SessionID == o.SessionID &&
		p.RequesterID == o.RequesterID &&
		p.RequesteeID == o.RequesteeID &&
		p.Code == o.Code &&
		p.IssuedAt.Equal(o.IssuedAt) &&
		p.ExpiresAt.Equal(o.ExpiresAt)
}

// CodeGenerator produces redemption codes for passes.
type CodeGenerator interface {
	NewCode() (string, error)
}

// RandomCodes draws base32 codes from crypto/rand.
type RandomCodes struct {
	Length int
}

// NewCode implements CodeGenerator.
func (g RandomCodes) NewCode() (string, error) {
	length := g.Length
	if length <= 0 {
		length = DefaultCodeLength
	}

	// 5 bits per base32 character
	buf := make([]byte, (length*5+7)/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}

	code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return code[:length], nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNTIME
// ══════════════════════════════════════════════════════════════════════════════

// Runtime bundles the collaborators the aggregates consult: a time source,
// a code source and the validity applied to newly issued passes.
type Runtime struct {
	Clock        shared.Clock
	Codes        CodeGenerator
	PassValidity time.Duration
}

// DefaultRuntime returns the production runtime.
func DefaultRuntime() Runtime {
	return Runtime{
		Clock:        shared.SystemClock{},
		Codes:        RandomCodes{Length: DefaultCodeLength},
		PassValidity: DefaultPassValidity,
	}
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithClock sets the time source.
func WithClock(c shared.Clock) Option {
	return func(rt *Runtime) {
		if c != nil {
			rt.Clock = c
		}
	}
}

// WithCodeGenerator sets the redemption code source.
func WithCodeGenerator(g CodeGenerator) Option {
	return func(rt *Runtime) {
		if g != nil {
			rt.Codes = g
		}
	}
}

// WithPassValidity sets the validity of newly issued passes.
func WithPassValidity(d time.Duration) Option {
	return func(rt *Runtime) {
		if d > 0 {
			rt.PassValidity = d
		}
	}
}

func newRuntime(opts ...Option) Runtime {
	rt := DefaultRuntime()
	for _, opt := range opts {
		opt(&rt)
	}
	return rt
}
