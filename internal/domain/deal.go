package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a deal's lifecycle phase.
type Stage string

const (
	StageNew           Stage = "new"
	StageNegotiation   Stage = "negotiation"
	StageUnderContract Stage = "under_contract"
	StageInspection    Stage = "inspection"
	StageFinancing     Stage = "financing"
	StageClosing       Stage = "closing"
	StageClosed        Stage = "closed"
	StageFallenThrough Stage = "fallen_through"
)

// stageEdges is the fixed transition graph. The only backward edge is
// Negotiation -> Negotiation (a new round superseding a countered one).
// Closed and FallenThrough are terminal.
var stageEdges = map[Stage][]Stage{
	StageNew:           {StageNegotiation, StageFallenThrough},
	StageNegotiation:   {StageNegotiation, StageUnderContract, StageFallenThrough},
	StageUnderContract: {StageInspection, StageFallenThrough},
	StageInspection:    {StageFinancing, StageFallenThrough},
	StageFinancing:     {StageClosing, StageFallenThrough},
	StageClosing:       {StageClosed, StageFallenThrough},
}

// ValidStage reports whether s is a member of the stage enumeration.
func ValidStage(s Stage) bool {
	switch s {
	case StageNew, StageNegotiation, StageUnderContract, StageInspection,
		StageFinancing, StageClosing, StageClosed, StageFallenThrough:
		return true
	}
	return false
}

// CanTransition reports whether target is reachable from current in one hop.
func CanTransition(current, target Stage) bool {
	for _, next := range stageEdges[current] {
		if next == target {
			return true
		}
	}
	return false
}

// TerminalStage reports whether a deal in s can never transition again.
func TerminalStage(s Stage) bool {
	return len(stageEdges[s]) == 0
}

// PropertyType classifies the property under contract.
type PropertyType string

const (
	PropertySingleFamily PropertyType = "single_family"
	PropertyCondo        PropertyType = "condo"
	PropertyTownhouse    PropertyType = "townhouse"
	PropertyMultiFamily  PropertyType = "multi_family"
	PropertyLand         PropertyType = "land"
)

// FinancingType is how the buyer funds the purchase.
type FinancingType string

const (
	FinancingConventional FinancingType = "conventional"
	FinancingFHA          FinancingType = "fha"
	FinancingVA           FinancingType = "va"
	FinancingCash         FinancingType = "cash"
)

// Health is a derived read-model status surfaced per deal.
type Health string

const (
	HealthOnTrack Health = "on_track"
	HealthAtRisk  Health = "at_risk"
	HealthStalled Health = "stalled"
)

// Attributes are the rule-relevant facts about a deal's property and
// financing shape. The rule engine evaluates these and nothing else.
type Attributes struct {
	YearBuilt     int
	PropertyType  PropertyType
	FinancingType FinancingType
	Keywords      []string
}

// Validate checks attributes for rule evaluation. A failure here never blocks
// a stage transition; it only suppresses derivation.
func (a Attributes) Validate() error {
	if a.YearBuilt < 1600 || a.YearBuilt > 2100 {
		return fmt.Errorf("%w: year built %d out of range", ErrInvalidRuleInput, a.YearBuilt)
	}
	if a.PropertyType == "" {
		return fmt.Errorf("%w: property type is empty", ErrInvalidRuleInput)
	}
	if a.FinancingType == "" {
		return fmt.Errorf("%w: financing type is empty", ErrInvalidRuleInput)
	}
	return nil
}

// StageEntry is one append-only stage history record.
type StageEntry struct {
	Stage     Stage
	EnteredAt time.Time
}

// Deal is the root aggregate. All child records reference it by ID only and
// every mutation is conditional on Version.
type Deal struct {
	ID             string
	Address        string
	Price          int64
	ClientID       string
	Stage          Stage
	StageEnteredAt time.Time
	StageHistory   []StageEntry
	Attrs          Attributes
	Health         Health
	Archived       bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewDealInput carries the fields needed to open a deal.
type NewDealInput struct {
	Address  string
	Price    int64
	ClientID string
	Attrs    Attributes
}

// NewDeal opens a deal in the New stage. The clock and id generator are
// injectable so callers control time and identity.
func NewDeal(input NewDealInput, now time.Time, newID func() string) (Deal, error) {
	input.Address = strings.TrimSpace(input.Address)
	if input.Address == "" {
		return Deal{}, fmt.Errorf("deal address is required")
	}
	if input.Price <= 0 {
		return Deal{}, fmt.Errorf("deal price must be positive")
	}
	now = now.UTC()
	return Deal{
		ID:             newID(),
		Address:        input.Address,
		Price:          input.Price,
		ClientID:       input.ClientID,
		Stage:          StageNew,
		StageEnteredAt: now,
		StageHistory:   []StageEntry{{Stage: StageNew, EnteredAt: now}},
		Attrs:          input.Attrs,
		Health:         HealthOnTrack,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AdvanceStage appends target to the deal's history after validating the
// transition graph. It does not touch ledgers; the deals service reconciles
// those after the conditional write succeeds.
func (d *Deal) AdvanceStage(target Stage, at time.Time) error {
	if !ValidStage(target) {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, target)
	}
	if !CanTransition(d.Stage, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Stage, target)
	}
	at = at.UTC()
	d.Stage = target
	d.StageEnteredAt = at
	d.StageHistory = append(d.StageHistory, StageEntry{Stage: target, EnteredAt: at})
	d.UpdatedAt = at
	return nil
}
