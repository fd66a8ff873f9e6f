package domain

import (
	"fmt"
	"time"
)

// EnvelopeStatus mirrors the signature provider's lifecycle.
type EnvelopeStatus string

const (
	EnvelopeSent      EnvelopeStatus = "sent"
	EnvelopeDelivered EnvelopeStatus = "delivered"
	EnvelopeCompleted EnvelopeStatus = "completed"
	EnvelopeDeclined  EnvelopeStatus = "declined"
	EnvelopeVoided    EnvelopeStatus = "voided"
)

// envelopeRank orders statuses for the "at least Delivered" checks. Declined
// and Voided are terminal exits, not ranks.
var envelopeRank = map[EnvelopeStatus]int{
	EnvelopeSent:      1,
	EnvelopeDelivered: 2,
	EnvelopeCompleted: 3,
}

// SignatureEnvelope tracks one signature request with a third-party provider.
type SignatureEnvelope struct {
	ID           string
	DealID       string
	ProviderID   string
	Recipient    string
	DocumentName string
	Status       EnvelopeStatus
	ViewedAt     *time.Time
	SignedAt     *time.Time
	// LastNudgeAt is the stall-nudge watermark; a nudge is only dispatched
	// when the watermark is at least NudgeCooldown old, and the watermark is
	// written with the same conditional write that marks dispatch.
	LastNudgeAt *time.Time
	NudgeFailed bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SignatureEvent is a provider callback applied to an envelope.
type SignatureEvent struct {
	Status   EnvelopeStatus
	ViewedAt *time.Time
	At       time.Time
}

// Apply validates and records a provider event. viewedAt may only be set once
// the envelope is at least Delivered; signedAt is set exactly when the status
// becomes Completed.
func (e *SignatureEnvelope) Apply(ev SignatureEvent) error {
	switch ev.Status {
	case EnvelopeSent, EnvelopeDelivered, EnvelopeCompleted, EnvelopeDeclined, EnvelopeVoided:
	default:
		return fmt.Errorf("%w: unknown envelope status %q", ErrInvalidStatus, ev.Status)
	}
	if e.Status == EnvelopeDeclined || e.Status == EnvelopeVoided || e.Status == EnvelopeCompleted {
		return fmt.Errorf("%w: envelope %s is %s", ErrInvalidStatus, e.ID, e.Status)
	}
	if rank, ok := envelopeRank[ev.Status]; ok {
		if cur, ok := envelopeRank[e.Status]; ok && rank < cur {
			return fmt.Errorf("%w: envelope %s cannot move %s -> %s",
				ErrInvalidStatus, e.ID, e.Status, ev.Status)
		}
	}
	at := ev.At.UTC()
	e.Status = ev.Status
	if ev.ViewedAt != nil {
		if envelopeRank[e.Status] < envelopeRank[EnvelopeDelivered] {
			return fmt.Errorf("%w: envelope %s viewed before delivery", ErrInvalidStatus, e.ID)
		}
		v := ev.ViewedAt.UTC()
		e.ViewedAt = &v
	}
	if ev.Status == EnvelopeCompleted {
		e.SignedAt = &at
	}
	e.UpdatedAt = at
	return nil
}

// Stalled reports whether the envelope was viewed but left unsigned past the
// threshold. It is false for every status except Delivered, so completing an
// envelope clears the condition immediately.
func (e *SignatureEnvelope) Stalled(now time.Time, threshold time.Duration) bool {
	return e.Status == EnvelopeDelivered &&
		e.ViewedAt != nil &&
		now.Sub(*e.ViewedAt) > threshold
}

// NudgeDue reports whether a stall nudge may be dispatched now, honoring the
// cooldown watermark.
func (e *SignatureEnvelope) NudgeDue(now time.Time, threshold, cooldown time.Duration) bool {
	if !e.Stalled(now, threshold) {
		return false
	}
	return e.LastNudgeAt == nil || now.Sub(*e.LastNudgeAt) >= cooldown
}
