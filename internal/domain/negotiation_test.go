package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewRoundStatusBySide(t *testing.T) {
	now := time.Now()
	ours, err := NewRound("deal-1", 1, SideOurClient, RoundTerms{OfferPrice: 500_000}, now, testID())
	if err != nil {
		t.Fatal(err)
	}
	if ours.Status != RoundSent {
		t.Fatalf("our round should start %s, got %s", RoundSent, ours.Status)
	}
	theirs, err := NewRound("deal-1", 2, SideOtherSide, RoundTerms{OfferPrice: 510_000}, now, testID())
	if err != nil {
		t.Fatal(err)
	}
	if theirs.Status != RoundReceived {
		t.Fatalf("their round should start %s, got %s", RoundReceived, theirs.Status)
	}
}

func TestNewRoundValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewRound("deal-1", 0, SideOurClient, RoundTerms{OfferPrice: 1}, now, testID()); err == nil {
		t.Fatal("expected error for round number 0")
	}
	if _, err := NewRound("deal-1", 1, "escrow", RoundTerms{OfferPrice: 1}, now, testID()); err == nil {
		t.Fatal("expected error for unknown side")
	}
	if _, err := NewRound("deal-1", 1, SideOurClient, RoundTerms{OfferPrice: 0}, now, testID()); err == nil {
		t.Fatal("expected error for non-positive offer")
	}
}

func TestResolveTerminality(t *testing.T) {
	now := time.Now()
	round, _ := NewRound("deal-1", 1, SideOurClient, RoundTerms{OfferPrice: 500_000}, now, testID())

	if err := round.Resolve(DecisionAccept, now); err != nil {
		t.Fatal(err)
	}
	if round.ResolvedAt == nil {
		t.Fatal("resolvedAt not set")
	}
	if err := round.Resolve(DecisionReject, now); !errors.Is(err, ErrConflictingRound) {
		t.Fatalf("resolving a terminal round should fail, got %v", err)
	}
}

func TestRoundStatusTerminal(t *testing.T) {
	for status, want := range map[RoundStatus]bool{
		RoundSent:      false,
		RoundReceived:  false,
		RoundAccepted:  true,
		RoundRejected:  true,
		RoundCountered: true,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, !want, want)
		}
	}
}
