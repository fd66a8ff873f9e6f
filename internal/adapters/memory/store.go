// Package memory provides an in-process store implementing every repository
// port with the same conditional-write semantics as the postgres adapter.
// It backs unit tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dealflow/internal/domain"
)

// Store holds all records behind one mutex. Version checks mirror the
// conditional writes the postgres adapter issues.
type Store struct {
	mu         sync.Mutex
	deals      map[string]domain.Deal
	tasks      map[string]domain.TransactionTask
	compliance map[string]domain.ComplianceChecklistItem
	rounds     map[string]domain.NegotiationRound
	envelopes  map[string]domain.SignatureEnvelope
	financing  map[string]domain.FinancingState
	finLog     map[string][]domain.FinancingLogEntry
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		deals:      make(map[string]domain.Deal),
		tasks:      make(map[string]domain.TransactionTask),
		compliance: make(map[string]domain.ComplianceChecklistItem),
		rounds:     make(map[string]domain.NegotiationRound),
		envelopes:  make(map[string]domain.SignatureEnvelope),
		financing:  make(map[string]domain.FinancingState),
		finLog:     make(map[string][]domain.FinancingLogEntry),
	}
}

// dealOpen reports whether monitor scans should include the deal's records.
// Mirrors the postgres adapters' join against deals. Callers hold the mutex.
func (s *Store) dealOpen(id string) bool {
	d, ok := s.deals[id]
	return ok && !d.Archived && !domain.TerminalStage(d.Stage)
}

// Deals

func (s *Store) CreateDeal(_ context.Context, d domain.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[d.ID]; ok {
		return fmt.Errorf("deal %s already exists", d.ID)
	}
	d.StageHistory = append([]domain.StageEntry(nil), d.StageHistory...)
	s.deals[d.ID] = d
	return nil
}

func (s *Store) GetDeal(_ context.Context, id string) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return domain.Deal{}, domain.ErrNotFound
	}
	d.StageHistory = append([]domain.StageEntry(nil), d.StageHistory...)
	return d, nil
}

func (s *Store) UpdateDeal(_ context.Context, d domain.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.deals[d.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != d.Version {
		return domain.ErrVersionConflict
	}
	d.Version++
	d.StageHistory = append([]domain.StageEntry(nil), d.StageHistory...)
	s.deals[d.ID] = d
	return nil
}

func (s *Store) ListOpenDeals(_ context.Context) ([]domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Deal
	for _, d := range s.deals {
		if d.Archived || domain.TerminalStage(d.Stage) {
			continue
		}
		d.StageHistory = append([]domain.StageEntry(nil), d.StageHistory...)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Tasks

func (s *Store) CreateTask(_ context.Context, t domain.TransactionTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.SourceRule != "" {
		// Derived tasks are idempotent on (deal, rule, title); a concurrent
		// duplicate create is a no-op, matching the unique index backstop.
		for _, cur := range s.tasks {
			if cur.DealID == t.DealID && cur.SourceRule == t.SourceRule && cur.Title == t.Title {
				return nil
			}
		}
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (domain.TransactionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.TransactionTask{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, t domain.TransactionTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != t.Version {
		return domain.ErrVersionConflict
	}
	t.Version++
	s.tasks[t.ID] = t
	return nil
}

func (s *Store) ListTasksByDeal(_ context.Context, dealID string) ([]domain.TransactionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionTask
	for _, t := range s.tasks {
		if t.DealID == dealID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Compliance

func (s *Store) CreateComplianceItem(_ context.Context, c domain.ComplianceChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.compliance {
		if cur.DealID == c.DealID && cur.SourceRule == c.SourceRule && cur.DocumentName == c.DocumentName {
			return nil
		}
	}
	s.compliance[c.ID] = c
	return nil
}

func (s *Store) GetComplianceItem(_ context.Context, id string) (domain.ComplianceChecklistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.compliance[id]
	if !ok {
		return domain.ComplianceChecklistItem{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateComplianceItem(_ context.Context, c domain.ComplianceChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.compliance[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != c.Version {
		return domain.ErrVersionConflict
	}
	c.Version++
	s.compliance[c.ID] = c
	return nil
}

func (s *Store) ListComplianceByDeal(_ context.Context, dealID string) ([]domain.ComplianceChecklistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ComplianceChecklistItem
	for _, c := range s.compliance {
		if c.DealID == dealID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Negotiation rounds

func (s *Store) AppendRound(_ context.Context, r domain.NegotiationRound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.rounds {
		if cur.DealID == r.DealID && cur.RoundNumber == r.RoundNumber {
			return fmt.Errorf("%w: round %d already exists", domain.ErrConflictingRound, r.RoundNumber)
		}
	}
	s.rounds[r.ID] = r
	return nil
}

func (s *Store) GetRound(_ context.Context, id string) (domain.NegotiationRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.NegotiationRound{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Store) UpdateRound(_ context.Context, r domain.NegotiationRound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rounds[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != r.Version {
		return domain.ErrVersionConflict
	}
	r.Version++
	s.rounds[r.ID] = r
	return nil
}

func (s *Store) ListRoundsByDeal(_ context.Context, dealID string) ([]domain.NegotiationRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NegotiationRound
	for _, r := range s.rounds {
		if r.DealID == dealID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

// Signature envelopes

func (s *Store) CreateEnvelope(_ context.Context, e domain.SignatureEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envelopes[e.ID]; ok {
		return fmt.Errorf("envelope %s already exists", e.ID)
	}
	s.envelopes[e.ID] = e
	return nil
}

func (s *Store) GetEnvelope(_ context.Context, id string) (domain.SignatureEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.envelopes[id]
	if !ok {
		return domain.SignatureEnvelope{}, domain.ErrNotFound
	}
	return e, nil
}

func (s *Store) UpdateEnvelope(_ context.Context, e domain.SignatureEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.envelopes[e.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != e.Version {
		return domain.ErrVersionConflict
	}
	e.Version++
	s.envelopes[e.ID] = e
	return nil
}

func (s *Store) ListOpenEnvelopes(_ context.Context) ([]domain.SignatureEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SignatureEnvelope
	for _, e := range s.envelopes {
		switch e.Status {
		case domain.EnvelopeCompleted, domain.EnvelopeDeclined, domain.EnvelopeVoided:
			continue
		}
		if !s.dealOpen(e.DealID) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Financing

func (s *Store) CreateFinancing(_ context.Context, f domain.FinancingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.financing[f.DealID]; ok {
		return fmt.Errorf("financing for deal %s already exists", f.DealID)
	}
	s.financing[f.DealID] = f
	return nil
}

func (s *Store) GetFinancing(_ context.Context, dealID string) (domain.FinancingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.financing[dealID]
	if !ok {
		return domain.FinancingState{}, domain.ErrNotFound
	}
	return f, nil
}

func (s *Store) UpdateFinancing(_ context.Context, f domain.FinancingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.financing[f.DealID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != f.Version {
		return domain.ErrVersionConflict
	}
	f.Version++
	s.financing[f.DealID] = f
	return nil
}

func (s *Store) AppendFinancingLog(_ context.Context, entry domain.FinancingLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finLog[entry.DealID] = append(s.finLog[entry.DealID], entry)
	return nil
}

func (s *Store) ListFinancingLog(_ context.Context, dealID string) ([]domain.FinancingLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FinancingLogEntry(nil), s.finLog[dealID]...), nil
}

func (s *Store) ListActiveFinancing(_ context.Context) ([]domain.FinancingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FinancingState
	for _, f := range s.financing {
		if !s.dealOpen(f.DealID) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DealID < out[j].DealID })
	return out, nil
}
