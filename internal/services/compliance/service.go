// Package compliance owns the required-document checklist. Items are derived
// by the rule engine at stage transitions; this service is the reviewer-side
// surface moving them Missing -> PendingReview -> Approved.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"dealflow/internal/domain"
	"dealflow/internal/occ"
	"dealflow/internal/ports"
)

// Service is the compliance ledger's review surface.
type Service struct {
	items  ports.ComplianceRepository
	events ports.EventSink
	clock  clockwork.Clock
	logger *slog.Logger
	newID  func() string
}

// New wires the service.
func New(items ports.ComplianceRepository, events ports.EventSink, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		items:  items,
		events: events,
		clock:  clock,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// ListByDeal returns the deal's checklist.
func (s *Service) ListByDeal(ctx context.Context, dealID string) ([]domain.ComplianceChecklistItem, error) {
	return s.items.ListComplianceByDeal(ctx, dealID)
}

// MarkPendingReview is the document-generation ingestion point: a generated
// or uploaded document moves the item from Missing to PendingReview.
func (s *Service) MarkPendingReview(ctx context.Context, itemID, documentHandle string) (domain.ComplianceChecklistItem, error) {
	documentHandle = strings.TrimSpace(documentHandle)
	if documentHandle == "" {
		return domain.ComplianceChecklistItem{}, fmt.Errorf("document handle is required")
	}
	return s.advance(ctx, itemID, domain.CompliancePendingReview, documentHandle)
}

// Approve moves a reviewed item to its terminal Approved status.
func (s *Service) Approve(ctx context.Context, itemID string) (domain.ComplianceChecklistItem, error) {
	return s.advance(ctx, itemID, domain.ComplianceApproved, "")
}

func (s *Service) advance(ctx context.Context, itemID string, target domain.ComplianceStatus, handle string) (domain.ComplianceChecklistItem, error) {
	var item domain.ComplianceChecklistItem
	err := occ.Retry(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.items.GetComplianceItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := item.Advance(target, s.clock.Now()); err != nil {
			return err
		}
		if handle != "" {
			item.DocumentHandle = handle
		}
		return s.items.UpdateComplianceItem(ctx, item)
	})
	if err != nil {
		return domain.ComplianceChecklistItem{}, err
	}
	item.Version++

	s.events.Emit(ctx, domain.Event{
		ID:         s.newID(),
		Type:       domain.EventComplianceItemStatusChanged,
		DealID:     item.DealID,
		OccurredAt: s.clock.Now().UTC(),
		Fields: map[string]string{
			"item_id":  item.ID,
			"document": item.DocumentName,
			"status":   string(item.Status),
			"rule":     item.SourceRule,
		},
	})
	return item, nil
}
