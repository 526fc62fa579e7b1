// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// Deps bundles the collaborators every handler needs.
type Deps struct {
	Publisher shared.EventPublisher
	Clock     shared.Clock
	Logger    *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Clock == nil {
		d.Clock = shared.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return d
}

func (d Deps) now() time.Time { return d.Clock.Now() }

// publish sends events after the transaction committed. A failed publish is
// logged and does not fail the command.
func (d Deps) publish(ctx context.Context, events ...shared.Event) {
	for _, e := range events {
		if err := d.Publisher.Publish(ctx, e); err != nil {
			d.Logger.Warn("event publish failed",
				logger.String("event_type", string(e.EventType())),
				logger.String("aggregate_id", e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INPUT PARSING
// ══════════════════════════════════════════════════════════════════════════════

func parseGroupID(op, raw string) (shared.GroupID, error) {
	if err := shared.NotBlank("command", op, "group id", raw); err != nil {
		return "", err
	}
	return shared.ParseGroupID(raw)
}

func parseSessionID(op, raw string) (shared.SessionID, error) {
	if err := shared.NotBlank("command", op, "session id", raw); err != nil {
		return "", err
	}
	return shared.ParseSessionID(raw)
}

func parseUserID(op, field, raw string) (shared.UserID, error) {
	if err := shared.NotBlank("command", op, field, raw); err != nil {
		return "", err
	}
	return shared.ParseUserID(raw)
}

func parseUserIDs(op string, raw []string) ([]shared.UserID, error) {
	out := make([]shared.UserID, 0, len(raw))
	for _, r := range raw {
		id, err := parseUserID(op, "student id", r)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
