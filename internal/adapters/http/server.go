// Package httpadapter exposes the engine's operations to the presentation
// layer as a thin JSON surface. The engine defines no wire format of its
// own; these handlers translate and delegate.
package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/domain"
	"dealflow/internal/services/compliance"
	"dealflow/internal/services/deals"
	"dealflow/internal/services/financing"
	"dealflow/internal/services/negotiation"
	"dealflow/internal/services/signatures"
	"dealflow/internal/services/tasks"
)

// Server holds the engine's services.
type Server struct {
	deals       *deals.Service
	negotiation *negotiation.Service
	tasks       *tasks.Service
	compliance  *compliance.Service
	signatures  *signatures.Service
	financing   *financing.Service
	logger      *slog.Logger
}

// New wires the HTTP surface.
func New(dealSvc *deals.Service, negSvc *negotiation.Service, taskSvc *tasks.Service, compSvc *compliance.Service, sigSvc *signatures.Service, finSvc *financing.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		deals:       dealSvc,
		negotiation: negSvc,
		tasks:       taskSvc,
		compliance:  compSvc,
		signatures:  sigSvc,
		financing:   finSvc,
		logger:      logger,
	}
}

// Routes mounts every handler.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)

	r.Route("/deals", func(r chi.Router) {
		r.Post("/", s.createDeal)
		r.Route("/{dealID}", func(r chi.Router) {
			r.Get("/", s.getDeal)
			r.Post("/transition", s.transitionDeal)
			r.Get("/history", s.dealHistory)
			r.Post("/archive", s.archiveDeal)

			r.Get("/rounds", s.listRounds)
			r.Post("/rounds", s.submitRound)
			r.Post("/negotiation/reopen", s.reopenNegotiation)

			r.Get("/tasks", s.listTasks)
			r.Post("/tasks", s.addTask)

			r.Get("/compliance", s.listCompliance)

			r.Post("/envelopes", s.openEnvelope)

			r.Post("/financing", s.openFinancing)
			r.Post("/financing/updates", s.ingestLenderUpdate)
			r.Get("/financing", s.getFinancing)
			r.Get("/financing/log", s.financingLog)
		})
	})

	r.Post("/rounds/{roundID}/resolve", s.resolveRound)
	r.Post("/rounds/{roundID}/counter", s.counterRound)
	r.Post("/tasks/{taskID}/status", s.setTaskStatus)
	r.Post("/compliance/{itemID}/review", s.markPendingReview)
	r.Post("/compliance/{itemID}/approve", s.approveCompliance)
	r.Post("/envelopes/{envelopeID}/events", s.recordSignatureEvent)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Deals

type createDealRequest struct {
	Address       string   `json:"address"`
	Price         int64    `json:"price"`
	ClientID      string   `json:"clientId"`
	YearBuilt     int      `json:"yearBuilt"`
	PropertyType  string   `json:"propertyType"`
	FinancingType string   `json:"financingType"`
	Keywords      []string `json:"keywords"`
}

func (s *Server) createDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if !decode(w, r, &req) {
		return
	}
	deal, err := s.deals.Create(r.Context(), domain.NewDealInput{
		Address:  req.Address,
		Price:    req.Price,
		ClientID: req.ClientID,
		Attrs: domain.Attributes{
			YearBuilt:     req.YearBuilt,
			PropertyType:  domain.PropertyType(req.PropertyType),
			FinancingType: domain.FinancingType(req.FinancingType),
			Keywords:      req.Keywords,
		},
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

func (s *Server) getDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := s.deals.Get(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (s *Server) transitionDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if !decode(w, r, &req) {
		return
	}
	deal, err := s.deals.Transition(r.Context(), chi.URLParam(r, "dealID"), domain.Stage(req.Target))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (s *Server) dealHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deals.History(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) archiveDeal(w http.ResponseWriter, r *http.Request) {
	if err := s.deals.Archive(r.Context(), chi.URLParam(r, "dealID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Negotiation

type roundTermsRequest struct {
	OfferPrice      int64      `json:"offerPrice"`
	Concessions     string     `json:"concessions"`
	ProposedClosing *time.Time `json:"proposedClosing"`
}

func (t roundTermsRequest) terms() domain.RoundTerms {
	return domain.RoundTerms{
		OfferPrice:      t.OfferPrice,
		Concessions:     t.Concessions,
		ProposedClosing: t.ProposedClosing,
	}
}

type actorRequest struct {
	ActorID   string `json:"actorId"`
	ActorSide string `json:"actorSide"`
}

func (a actorRequest) actor() negotiation.Actor {
	return negotiation.Actor{ID: a.ActorID, Side: domain.Side(a.ActorSide)}
}

func (s *Server) submitRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		actorRequest
		roundTermsRequest
	}
	if !decode(w, r, &req) {
		return
	}
	round, err := s.negotiation.SubmitRound(r.Context(), chi.URLParam(r, "dealID"),
		req.actor(), req.terms())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := s.negotiation.Rounds(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) resolveRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
		actorRequest
	}
	if !decode(w, r, &req) {
		return
	}
	round, err := s.negotiation.ResolveRound(r.Context(), chi.URLParam(r, "roundID"),
		req.actor(), domain.RoundDecision(req.Decision))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *Server) counterRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		actorRequest
		roundTermsRequest
	}
	if !decode(w, r, &req) {
		return
	}
	successor, err := s.negotiation.CounterRound(r.Context(), chi.URLParam(r, "roundID"),
		req.actor(), req.terms())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, successor)
}

func (s *Server) reopenNegotiation(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.negotiation.Reopen(r.Context(), chi.URLParam(r, "dealID"), req.actor()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tasks

func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phase        string     `json:"phase"`
		Title        string     `json:"title"`
		Priority     string     `json:"priority"`
		Category     string     `json:"category"`
		DueDate      *time.Time `json:"dueDate"`
		AssigneeRole string     `json:"assigneeRole"`
	}
	if !decode(w, r, &req) {
		return
	}
	task, err := s.tasks.AddManual(r.Context(), tasks.AddManualInput{
		DealID:       chi.URLParam(r, "dealID"),
		Phase:        domain.Stage(req.Phase),
		Title:        req.Title,
		Priority:     domain.Priority(req.Priority),
		Category:     req.Category,
		DueDate:      req.DueDate,
		AssigneeRole: req.AssigneeRole,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.ListByDeal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) setTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	task, err := s.tasks.SetStatus(r.Context(), chi.URLParam(r, "taskID"), domain.TaskStatus(req.Status))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Compliance

func (s *Server) listCompliance(w http.ResponseWriter, r *http.Request) {
	list, err := s.compliance.ListByDeal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) markPendingReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentHandle string `json:"documentHandle"`
	}
	if !decode(w, r, &req) {
		return
	}
	item, err := s.compliance.MarkPendingReview(r.Context(), chi.URLParam(r, "itemID"), req.DocumentHandle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) approveCompliance(w http.ResponseWriter, r *http.Request) {
	item, err := s.compliance.Approve(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Signatures

func (s *Server) openEnvelope(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID   string `json:"providerId"`
		Recipient    string `json:"recipient"`
		DocumentName string `json:"documentName"`
	}
	if !decode(w, r, &req) {
		return
	}
	env, err := s.signatures.Open(r.Context(), signatures.OpenEnvelopeInput{
		DealID:       chi.URLParam(r, "dealID"),
		ProviderID:   req.ProviderID,
		Recipient:    req.Recipient,
		DocumentName: req.DocumentName,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (s *Server) recordSignatureEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status   string     `json:"status"`
		ViewedAt *time.Time `json:"viewedAt"`
		At       time.Time  `json:"at"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.At.IsZero() {
		req.At = time.Now()
	}
	env, err := s.signatures.RecordEvent(r.Context(), chi.URLParam(r, "envelopeID"), domain.SignatureEvent{
		Status:   domain.EnvelopeStatus(req.Status),
		ViewedAt: req.ViewedAt,
		At:       req.At,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// Financing

func (s *Server) openFinancing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LenderName    string `json:"lenderName"`
		LenderContact string `json:"lenderContact"`
	}
	if !decode(w, r, &req) {
		return
	}
	state, err := s.financing.Open(r.Context(), chi.URLParam(r, "dealID"), req.LenderName, req.LenderContact)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) getFinancing(w http.ResponseWriter, r *http.Request) {
	state, err := s.financing.Get(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) ingestLenderUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string     `json:"text"`
		At   *time.Time `json:"at"`
	}
	if !decode(w, r, &req) {
		return
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	state, err := s.financing.IngestLenderUpdate(r.Context(), chi.URLParam(r, "dealID"), req.Text, at)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) financingLog(w http.ResponseWriter, r *http.Request) {
	log, err := s.financing.Log(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// Helpers

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps engine errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidStatus):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConflictingRound), errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrBusy):
		code = http.StatusConflict
	default:
		code = http.StatusInternalServerError
		s.logger.Error("internal error", "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
