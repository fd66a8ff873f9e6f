package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side identifies which party authored a negotiation round.
type Side string

const (
	SideOurClient Side = "our_client"
	SideOtherSide Side = "other_side"
)

// RoundStatus tracks one offer/counter-offer exchange. Sent and Received are
// the non-terminal states; at most one round per deal may be non-terminal.
type RoundStatus string

const (
	RoundSent      RoundStatus = "sent"
	RoundReceived  RoundStatus = "received"
	RoundAccepted  RoundStatus = "accepted"
	RoundRejected  RoundStatus = "rejected"
	RoundCountered RoundStatus = "countered"
)

// Terminal reports whether a round status permits no further resolution.
func (s RoundStatus) Terminal() bool {
	return s == RoundAccepted || s == RoundRejected || s == RoundCountered
}

// RoundTerms are the negotiable contents of one round.
type RoundTerms struct {
	OfferPrice      int64
	Concessions     string
	ProposedClosing *time.Time
}

// NegotiationRound is one exchange in a deal's negotiation. Round numbers are
// strictly increasing and gap-free, starting at 1.
type NegotiationRound struct {
	ID          string
	DealID      string
	RoundNumber int
	Side        Side
	Status      RoundStatus
	Terms       RoundTerms
	// AISummary is an opaque analysis string supplied by an external
	// collaborator; the engine never generates or interprets it.
	AISummary string
	// Reopened marks a rejected round whose negotiation was explicitly
	// reopened, permitting a fresh round to follow it.
	Reopened   bool
	Version    int64
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// RoundDecision is a resolution verb applied to a non-terminal round.
type RoundDecision string

const (
	DecisionAccept  RoundDecision = "accept"
	DecisionReject  RoundDecision = "reject"
	DecisionCounter RoundDecision = "counter"
)

// NewRound appends a round after the given predecessor number. Our side's
// submissions start Sent; the other side's arrive Received.
func NewRound(dealID string, number int, side Side, terms RoundTerms, now time.Time, newID func() string) (NegotiationRound, error) {
	if number < 1 {
		return NegotiationRound{}, fmt.Errorf("round number must be >= 1, got %d", number)
	}
	if side != SideOurClient && side != SideOtherSide {
		return NegotiationRound{}, fmt.Errorf("unknown side %q", side)
	}
	if terms.OfferPrice <= 0 {
		return NegotiationRound{}, fmt.Errorf("offer price must be positive")
	}
	status := RoundSent
	if side == SideOtherSide {
		status = RoundReceived
	}
	terms.Concessions = strings.TrimSpace(terms.Concessions)
	return NegotiationRound{
		ID:          newID(),
		DealID:      dealID,
		RoundNumber: number,
		Side:        side,
		Status:      status,
		Terms:       terms,
		Version:     1,
		CreatedAt:   now.UTC(),
	}, nil
}

// Resolve applies a decision to a non-terminal round. Countering is driven by
// the negotiation service, which appends the successor round immediately
// after.
func (r *NegotiationRound) Resolve(decision RoundDecision, at time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: round %d already %s", ErrConflictingRound, r.RoundNumber, r.Status)
	}
	switch decision {
	case DecisionAccept:
		r.Status = RoundAccepted
	case DecisionReject:
		r.Status = RoundRejected
	case DecisionCounter:
		r.Status = RoundCountered
	default:
		return fmt.Errorf("unknown round decision %q", decision)
	}
	t := at.UTC()
	r.ResolvedAt = &t
	return nil
}
