package sortie

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sortie/internal/pricing"
)

var (
	// ErrIncompleteLines blocks a submission with lines edited but lacking a product.
	ErrIncompleteLines = errors.New("sortie: incomplete lines")
	// ErrNotSubmittable blocks a submission that fails validation.
	ErrNotSubmittable = errors.New("sortie: draft cannot be submitted")
	// ErrDuplicateOrderNumber reports an order number already used upstream.
	ErrDuplicateOrderNumber = errors.New("sortie: order number already exists")
)

// BlockedError carries the verdict that prevented a submission.
type BlockedError struct {
	Verdict Verdict
}

func (e *BlockedError) Error() string {
	conds := make([]string, 0, len(e.Verdict.Blockers))
	for _, b := range e.Verdict.Blockers {
		conds = append(conds, string(b.Condition))
	}
	return fmt.Sprintf("%s: %s", e.Unwrap(), strings.Join(conds, ", "))
}

// Unwrap exposes ErrIncompleteLines when present, ErrNotSubmittable otherwise.
func (e *BlockedError) Unwrap() error {
	if e.Verdict.Has(ConditionIncompleteLines) {
		return ErrIncompleteLines
	}
	return ErrNotSubmittable
}

// FieldErrors maps a field name to its messages as returned upstream.
type FieldErrors map[string][]string

// RejectedError is a submission refused upstream with field-level errors,
// mapped back onto the draft.
type RejectedError struct {
	Message string `json:"message"`
	// Header maps header field names to a message.
	Header map[string]string `json:"header,omitempty"`
	// Lines maps draft line ids to field messages.
	Lines map[string]map[string]string `json:"lines,omitempty"`
	// Duplicate is set when the order number already exists.
	Duplicate bool `json:"duplicate"`
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "sortie: submission rejected"
	}
	return "sortie: submission rejected: " + e.Message
}

// Unwrap exposes ErrDuplicateOrderNumber for duplicate order numbers.
func (e *RejectedError) Unwrap() error {
	if e.Duplicate {
		return ErrDuplicateOrderNumber
	}
	return nil
}

// SubmissionLine is a line as handed over to the back office.
type SubmissionLine struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Weight    decimal.Decimal `json:"weight"`
	Offered   bool            `json:"offered"`
}

// Submission is the payload of an order submission.
type Submission struct {
	OrderNumber     string           `json:"order_number"`
	ClientID        string           `json:"client_id"`
	CommercialID    string           `json:"commercial_id"`
	Date            string           `json:"date"`
	DeliveryAgentID string           `json:"delivery_agent_id,omitempty"`
	Basis           pricing.Basis    `json:"basis"`
	Lines           []SubmissionLine `json:"lines"`
	Totals          pricing.Summary  `json:"totals"`

	// lineIDs holds the draft id of each payload line.
	lineIDs []string
}

// LineID returns the draft line id behind payload line i.
func (s Submission) LineID(i int) (string, bool) {
	if i < 0 || i >= len(s.lineIDs) {
		return "", false
	}
	return s.lineIDs[i], true
}

// BuildSubmission assembles the payload: valid lines only, in collection
// order, every amount rounded to two decimals.
func BuildSubmission(d Draft) Submission {
	h := d.Header()
	sub := Submission{
		OrderNumber:     strings.TrimSpace(h.OrderNumber),
		ClientID:        h.ClientID,
		CommercialID:    h.CommercialID,
		Date:            h.Date,
		DeliveryAgentID: h.DeliveryAgentID,
		Basis:           h.Basis,
		Lines:           []SubmissionLine{},
		Totals:          d.Totals().Rounded(),
	}
	for _, l := range d.lines {
		if !lineValid(l) {
			continue
		}
		p, _ := l.Product()
		sub.Lines = append(sub.Lines, SubmissionLine{
			ProductID: p.ID,
			Quantity:  l.Quantity(),
			UnitPrice: l.UnitPrice().Round(2),
			Weight:    l.Weight().Round(2),
			Offered:   l.Offered(),
		})
		sub.lineIDs = append(sub.lineIDs, l.ID())
	}
	return sub
}

// MapRejection maps upstream field errors onto the draft. Keys of the form
// lines.N.field point at payload line N; every other key is a header field.
func MapRejection(sub Submission, message string, fields FieldErrors, duplicate bool) *RejectedError {
	rej := &RejectedError{Message: message, Duplicate: duplicate}
	for key, msgs := range fields {
		if len(msgs) == 0 {
			continue
		}
		msg := msgs[0]
		if rest, ok := strings.CutPrefix(key, "lines."); ok {
			idx, field, found := strings.Cut(rest, ".")
			n, err := strconv.Atoi(idx)
			if lineID, known := sub.LineID(n); found && err == nil && known {
				if rej.Lines == nil {
					rej.Lines = map[string]map[string]string{}
				}
				if rej.Lines[lineID] == nil {
					rej.Lines[lineID] = map[string]string{}
				}
				rej.Lines[lineID][field] = msg
				continue
			}
		}
		if rej.Header == nil {
			rej.Header = map[string]string{}
		}
		rej.Header[key] = msg
	}
	return rej
}
