package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealflow/internal/domain"
)

// NudgeKind says which monitor raised the nudge.
type NudgeKind string

const (
	NudgeSignatureStall   NudgeKind = "signature_stall"
	NudgeLenderInactivity NudgeKind = "lender_inactivity"
)

// NudgeCommand asks the notification collaborator to remind an external
// party. ID is deterministic per stall episode so the dispatcher can
// de-duplicate; a command whose condition resolved before delivery is a
// benign no-op for implementations, never an error.
type NudgeCommand struct {
	ID        string
	Kind      NudgeKind
	DealID    string
	TargetID  string
	Recipient string
	Reason    string
}

// Notifier delivers nudges. Implementations must be idempotent keyed by
// NudgeCommand.ID.
type Notifier interface {
	Send(ctx context.Context, cmd NudgeCommand) error
}

// EventSink receives engine events after local writes commit. Delivery is
// at-least-once; consumers de-duplicate by event ID.
type EventSink interface {
	Emit(ctx context.Context, ev domain.Event)
}

// nudgeNamespace scopes the deterministic nudge command ids.
var nudgeNamespace = uuid.MustParse("9f2c1a37-5d44-4a57-8d1e-0b6a4f2e9c11")

// NudgeCommandID derives the same command id on every instance that claims
// the same cooldown window for the same target, so the dispatcher's
// idempotency key holds across scan races.
func NudgeCommandID(kind NudgeKind, targetID string, now time.Time, cooldown time.Duration) string {
	window := now.Truncate(cooldown).Unix()
	key := fmt.Sprintf("%s:%s:%d", kind, targetID, window)
	return uuid.NewSHA1(nudgeNamespace, []byte(key)).String()
}
