package group

import (
	"fmt"
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

var t0 = time.Date(2024, time.April, 15, 10, 0, 0, 0, time.UTC)

type manualClock struct {
	now time.Time
}

func newManualClock(at time.Time) *manualClock { return &manualClock{now: at} }

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func userID(n int) shared.UserID {
	return shared.UserID(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

func sessionID(n int) shared.SessionID {
	return shared.SessionID(fmt.Sprintf("10000000-0000-0000-0000-%012d", n))
}

func testOptions(clock shared.Clock, codes CodeGenerator) []Option {
	return []Option{WithClock(clock), WithCodeGenerator(codes), WithPassValidity(5 * time.Minute)}
}

// sequenceCodes hands out codes in order and then repeats the last one.
type sequenceCodes struct {
	codes []string
	next  int
}

func fixedCodes(codes ...string) *sequenceCodes { return &sequenceCodes{codes: codes} }

func (s *sequenceCodes) NewCode() (string, error) {
	if len(s.codes) == 0 {
		return "", fmt.Errorf("no codes configured")
	}
	i := s.next
	if i >= len(s.codes) {
		i = len(s.codes) - 1
	}
	s.next++
	return s.codes[i], nil
}
