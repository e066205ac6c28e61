package sortie

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/common"
	"github.com/noah-isme/backend-sortie/internal/pricing"
)

// Handler exposes the draft editing endpoints.
type Handler struct {
	Sessions *Sessions
	// BasePath prefixes the recovery links returned to clients.
	BasePath string
}

// Routes mounts the draft endpoints. submit wraps the submit endpoint only.
func (h *Handler) Routes(r chi.Router, submit ...func(http.Handler) http.Handler) {
	r.Post("/", h.Start)
	r.Route("/{draftID}", func(d chi.Router) {
		d.Get("/", h.Get)
		d.Delete("/", h.Close)
		d.Post("/reset", h.Reset)
		d.Patch("/header", h.SetHeader)
		d.Put("/client", h.SelectClient)
		d.Put("/basis", h.SetBasis)
		d.Post("/lines", h.AddLine)
		d.Patch("/lines/{lineID}", h.UpdateLine)
		d.Delete("/lines/{lineID}", h.RemoveLine)
		d.Get("/totals", h.Totals)
		d.Get("/verdict", h.Verdict)
		d.Post("/order-number/refresh", h.RefreshOrderNumber)
		d.With(submit...).Post("/submit", h.Submit)
	})
}

type fieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type clientRequest struct {
	ClientID string `json:"clientId"`
}

type basisRequest struct {
	Basis string `json:"basis"`
}

type addLineRequest struct {
	ID string `json:"id"`
}

// LineView is the JSON shape of a line.
type LineView struct {
	ID           string          `json:"id"`
	State        LineState       `json:"state"`
	Offered      bool            `json:"offered"`
	SourceLineID string          `json:"sourceLineId,omitempty"`
	OfferedID    string          `json:"offeredLineId,omitempty"`
	ProductID    string          `json:"productId,omitempty"`
	ProductRef   string          `json:"productRef,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Weight       decimal.Decimal `json:"weight"`
}

// DraftView is the JSON snapshot of a session.
type DraftView struct {
	ID      string          `json:"id"`
	Header  Header          `json:"header"`
	Client  *catalog.Client `json:"client"`
	Lines   []LineView      `json:"lines"`
	Totals  pricing.Summary `json:"totals"`
	Verdict Verdict         `json:"verdict"`
}

// View renders a draft for the API.
func View(id string, d Draft) DraftView {
	view := DraftView{ID: id, Header: d.Header(), Lines: []LineView{}, Totals: d.Totals(), Verdict: Validate(d)}
	if c, ok := d.Client(); ok {
		view.Client = &c
	}
	for _, l := range d.Lines() {
		state, _ := d.LineState(l.ID())
		lv := LineView{
			ID:        l.ID(),
			State:     state,
			Offered:   l.Offered(),
			Quantity:  l.Quantity(),
			UnitPrice: l.UnitPrice(),
			Weight:    l.Weight(),
		}
		if p, ok := l.Product(); ok {
			lv.ProductID, lv.ProductRef = p.ID, p.Reference
		}
		if l.Offered() {
			lv.SourceLineID, _ = d.SourceOf(l.ID())
		} else {
			lv.OfferedID, _ = d.OfferedFor(l.ID())
		}
		view.Lines = append(view.Lines, lv)
	}
	return view
}

// Start opens a new editing session.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Start(r.Context())
	common.JSONData(w, http.StatusCreated, View(s.ID(), s.Draft()))
}

// Get returns the session snapshot.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Draft())
}

// Close discards the session.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Close(chi.URLParam(r, "draftID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset starts the session over with an empty draft.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.Reset(r.Context()))
}

// SetHeader updates one header field.
func (h *Handler) SetHeader(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.SetHeaderField(r.Context(), req.Field, req.Value)
	h.respondOrFail(w, r, s, d, err)
}

// SelectClient selects the draft client.
func (h *Handler) SelectClient(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req clientRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.SelectClient(r.Context(), req.ClientID)
	h.respondOrFail(w, r, s, d, err)
}

// SetBasis switches the pricing basis.
func (h *Handler) SetBasis(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req basisRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.SetBasis(r.Context(), pricing.Basis(req.Basis))
	h.respondOrFail(w, r, s, d, err)
}

// AddLine prepends a blank line.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addLineRequest
	if !decode(w, r, &req) {
		return
	}
	d, _, err := s.AddLine(r.Context(), req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSONData(w, http.StatusCreated, View(s.ID(), d))
}

// UpdateLine edits the product, quantity or price of a line.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.UpdateLine(r.Context(), chi.URLParam(r, "lineID"), LineField(strings.TrimSpace(req.Field)), req.Value)
	h.respondOrFail(w, r, s, d, err)
}

// RemoveLine deletes a line and its offered line.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	d, err := s.RemoveLine(r.Context(), chi.URLParam(r, "lineID"))
	h.respondOrFail(w, r, s, d, err)
}

// Totals returns the live totals at full precision.
func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	common.JSONData(w, http.StatusOK, s.Draft().Totals())
}

// Verdict reports whether the draft can be submitted.
func (h *Handler) Verdict(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	common.JSONData(w, http.StatusOK, s.Verdict())
}

// RefreshOrderNumber fetches a fresh order number suggestion.
func (h *Handler) RefreshOrderNumber(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	d, err := s.RefreshOrderNumber(r.Context())
	h.respondOrFail(w, r, s, d, err)
}

// Submit hands the draft to the back office.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	sub, err := s.Submit(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSONData(w, http.StatusCreated, map[string]any{
		"submitted": sub,
		"draft":     View(s.ID(), s.Draft()),
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.Sessions.Get(chi.URLParam(r, "draftID"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) respond(w http.ResponseWriter, s *Session, d Draft) {
	common.JSONData(w, http.StatusOK, View(s.ID(), d))
}

func (h *Handler) respondOrFail(w http.ResponseWriter, r *http.Request, s *Session, d Draft, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, s, d)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		blocked  *BlockedError
		rejected *RejectedError
	)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, "DRAFT_NOT_FOUND", "draft not found", nil)
	case errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "LINE_NOT_FOUND", "line not found", nil)
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrOfferedLineReadOnly):
		common.JSONError(w, http.StatusConflict, "OFFERED_LINE_READ_ONLY", "offered lines cannot be edited", nil)
	case errors.Is(err, ErrUnknownField):
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_FIELD", err.Error(), nil)
	case errors.Is(err, ErrInvalidValue):
		common.JSONError(w, http.StatusBadRequest, "INVALID_VALUE", err.Error(), nil)
	case errors.Is(err, ErrProductInactive):
		common.JSONError(w, http.StatusUnprocessableEntity, "PRODUCT_INACTIVE", "product is inactive", nil)
	case errors.As(err, &blocked):
		code := "NOT_SUBMITTABLE"
		if errors.Is(err, ErrIncompleteLines) {
			code = "INCOMPLETE_LINES"
		}
		common.JSONError(w, http.StatusUnprocessableEntity, code, "draft cannot be submitted", blocked.Verdict)
	case errors.Is(err, ErrDuplicateOrderNumber):
		common.JSONError(w, http.StatusConflict, "DUPLICATE_ORDER_NUMBER", "order number already exists", map[string]any{
			"rejection": rejectionDetails(err),
			"recovery": map[string]string{
				"method": http.MethodPost,
				"href":   h.BasePath + "/" + chi.URLParam(r, "draftID") + "/order-number/refresh",
			},
		})
	case errors.As(err, &rejected):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", rejected.Message, rejected)
	default:
		if appErr, ok := common.AsAppError(err); ok {
			common.WriteAppError(w, appErr)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func rejectionDetails(err error) *RejectedError {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected
	}
	return nil
}
