package sortie

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sortie/internal/catalog"
	"github.com/noah-isme/backend-sortie/internal/obs"
	"github.com/noah-isme/backend-sortie/internal/pricing"
	"github.com/noah-isme/backend-sortie/internal/promotion"
)

// Catalog resolves the products and clients referenced by a draft.
type Catalog interface {
	Product(ctx context.Context, id string) (catalog.Product, error)
	Client(ctx context.Context, id string) (catalog.Client, error)
}

// Dispatcher resolves promotions in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, req promotion.Request, apply func(promotion.Outcome))
}

// OrderNumberSource suggests the next order number.
type OrderNumberSource interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// Submitter hands a submission over to the back office. Field-level
// refusals are reported as *RejectedError.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) error
}

// SubmitGuard serialises submissions sharing an order number.
type SubmitGuard interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// LineField names an editable line field.
type LineField string

const (
	LineFieldProduct  LineField = "product"
	LineFieldQuantity LineField = "quantity"
	LineFieldPrice    LineField = "price"
)

type deps struct {
	catalog   Catalog
	resolver  Dispatcher
	numbers   OrderNumberSource
	submitter Submitter
	guard     SubmitGuard
	guardTTL  time.Duration
	mode      pricing.SurchargeMode
	logger    zerolog.Logger
	newID     func() string
}

// Session is one editing session. It is the only writer of its draft.
type Session struct {
	id   string
	deps *deps

	mu         sync.Mutex
	draft      Draft
	generation uint64
	// edits counts applied user actions.
	edits uint64
}

func newSession(id string, d *deps) *Session {
	return &Session{id: id, deps: d, draft: NewDraft(d.mode)}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Draft returns the current draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Verdict validates the current draft.
func (s *Session) Verdict() Verdict {
	return Validate(s.Draft())
}

// AddLine prepends a blank line. An empty id is generated.
func (s *Session) AddLine(ctx context.Context, id string) (Draft, string, error) {
	if strings.TrimSpace(id) == "" {
		id = s.deps.newID()
	}
	d, err := s.apply(ctx, AddLine{ID: id})
	return d, strings.TrimSpace(id), err
}

// RemoveLine deletes a line and its offered line.
func (s *Session) RemoveLine(ctx context.Context, id string) (Draft, error) {
	return s.apply(ctx, RemoveLine{ID: id})
}

// UpdateLine parses a raw field value and applies the matching action.
func (s *Session) UpdateLine(ctx context.Context, id string, field LineField, raw string) (Draft, error) {
	value := strings.TrimSpace(raw)
	switch field {
	case LineFieldProduct:
		if value == "" {
			return s.apply(ctx, SetLineProduct{ID: id})
		}
		if err := s.checkEditable(id); err != nil {
			return s.Draft(), err
		}
		product, err := s.deps.catalog.Product(ctx, value)
		if err != nil {
			return s.Draft(), fmt.Errorf("load product %s: %w", value, err)
		}
		return s.apply(ctx, SetLineProduct{ID: id, Product: &product})
	case LineFieldQuantity:
		qty, err := parseAmount(value, false)
		if err != nil {
			return s.Draft(), err
		}
		return s.apply(ctx, SetLineQuantity{ID: id, Quantity: qty})
	case LineFieldPrice:
		price, err := parseAmount(value, false)
		if err != nil {
			return s.Draft(), err
		}
		return s.apply(ctx, SetLinePrice{ID: id, Price: price})
	default:
		return s.Draft(), fmt.Errorf("line field %q: %w", field, ErrUnknownField)
	}
}

// SetHeaderField sets a header field. The client and basis fields are
// routed to their dedicated operations.
func (s *Session) SetHeaderField(ctx context.Context, field, value string) (Draft, error) {
	switch strings.TrimSpace(field) {
	case "client":
		return s.SelectClient(ctx, value)
	case "basis":
		return s.SetBasis(ctx, pricing.Basis(value))
	}
	return s.apply(ctx, SetHeaderField{Field: HeaderField(strings.TrimSpace(field)), Value: value})
}

// SelectClient loads and selects a client. An empty id clears the selection.
func (s *Session) SelectClient(ctx context.Context, clientID string) (Draft, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return s.apply(ctx, SelectClient{})
	}
	client, err := s.deps.catalog.Client(ctx, clientID)
	if err != nil {
		return s.Draft(), fmt.Errorf("load client %s: %w", clientID, err)
	}
	return s.apply(ctx, SelectClient{Client: &client})
}

// SetBasis switches the pricing basis.
func (s *Session) SetBasis(ctx context.Context, basis pricing.Basis) (Draft, error) {
	return s.apply(ctx, SetBasis{Basis: basis})
}

// RefreshOrderNumber replaces the order number with a fresh suggestion.
func (s *Session) RefreshOrderNumber(ctx context.Context) (Draft, error) {
	number, err := s.deps.numbers.NextOrderNumber(ctx)
	if err != nil {
		return s.Draft(), fmt.Errorf("next order number: %w", err)
	}
	return s.apply(ctx, SetHeaderField{Field: FieldOrderNumber, Value: number})
}

// Reset discards the draft and starts over with a fresh order number.
func (s *Session) Reset(ctx context.Context) Draft {
	s.mu.Lock()
	s.draft = NewDraft(s.deps.mode)
	s.generation++
	s.mu.Unlock()
	s.prefillOrderNumber(ctx)
	return s.Draft()
}

// Submit validates the draft and hands it to the back office. On success
// the session is reset and the submitted payload returned.
func (s *Session) Submit(ctx context.Context) (Submission, error) {
	s.mu.Lock()
	verdict := Validate(s.draft)
	if !verdict.CanSubmit {
		s.mu.Unlock()
		obs.CountSubmission("blocked")
		return Submission{}, &BlockedError{Verdict: verdict}
	}
	sub := BuildSubmission(s.draft)
	gen, edits := s.generation, s.edits
	s.mu.Unlock()

	submit := func(ctx context.Context) error { return s.deps.submitter.Submit(ctx, sub) }
	var err error
	if s.deps.guard != nil {
		err = s.deps.guard.WithLock(ctx, sub.OrderNumber, s.deps.guardTTL, submit)
	} else {
		err = submit(ctx)
	}
	logger := loggerFrom(ctx, s.deps.logger)
	if err != nil {
		var rejected *RejectedError
		switch {
		case errors.Is(err, ErrDuplicateOrderNumber):
			obs.CountSubmission("duplicate")
		case errors.As(err, &rejected):
			obs.CountSubmission("rejected")
		default:
			obs.CountSubmission("error")
			logger.Error().Err(err).Str("draft_id", s.id).Msg("sortie_submit_failed")
		}
		return Submission{}, err
	}
	obs.CountSubmission("accepted")
	logger.Info().Str("draft_id", s.id).Str("order_number", sub.OrderNumber).Int("lines", len(sub.Lines)).Msg("sortie_submitted")

	s.mu.Lock()
	// Edits made during the call never reached the payload, so the draft is kept.
	if s.generation == gen && s.edits == edits {
		s.draft = NewDraft(s.deps.mode)
		s.generation++
	}
	s.mu.Unlock()
	s.prefillOrderNumber(ctx)
	return sub, nil
}

func (s *Session) prefillOrderNumber(ctx context.Context) {
	if s.deps.numbers == nil {
		return
	}
	number, err := s.deps.numbers.NextOrderNumber(ctx)
	if err != nil {
		logger := loggerFrom(ctx, s.deps.logger)
		logger.Warn().Err(err).Str("draft_id", s.id).Msg("order_number_suggestion_failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft.Header().OrderNumber != "" {
		return
	}
	if next, _, err := s.draft.Apply(SetHeaderField{Field: FieldOrderNumber, Value: number}); err == nil {
		s.draft = next
	}
}

func (s *Session) checkEditable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, err := s.draft.normal(id)
	return err
}

// apply runs a under the lock, then dispatches the requested effects.
func (s *Session) apply(ctx context.Context, a Action) (Draft, error) {
	s.mu.Lock()
	next, effects, err := s.draft.Apply(a)
	if err != nil {
		current := s.draft
		s.mu.Unlock()
		return current, err
	}
	s.draft = next
	s.edits++
	gen := s.generation
	s.mu.Unlock()

	for _, e := range effects {
		if check, ok := e.(PromotionCheck); ok && s.deps.resolver != nil {
			s.deps.resolver.Dispatch(ctx, check.Request(), s.onPromotion(ctx, gen))
		}
	}
	return s.Draft(), nil
}

func (s *Session) onPromotion(ctx context.Context, gen uint64) func(promotion.Outcome) {
	logger := loggerFrom(ctx, s.deps.logger)
	return func(out promotion.Outcome) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			countStale()
			return
		}
		next, _, err := s.draft.Apply(SetPromotionResult{Outcome: out, OfferedID: s.deps.newID()})
		switch {
		case errors.Is(err, ErrStaleResult):
			countStale()
			logger.Debug().Err(err).Str("draft_id", s.id).Msg("promotion_result_discarded")
		case err != nil:
			logger.Warn().Err(err).Str("draft_id", s.id).Msg("promotion_result_rejected")
		default:
			s.draft = next
		}
	}
}

func countStale() {
	if obs.PromotionStaleResults != nil {
		obs.PromotionStaleResults.Inc()
	}
}

func loggerFrom(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

func defaultID() string { return uuid.NewString() }
