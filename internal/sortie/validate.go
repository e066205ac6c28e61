package sortie

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

// Condition classifies a reason a draft cannot be submitted.
type Condition string

const (
	ConditionMissingField    Condition = "missing_field"
	ConditionNoCommercial    Condition = "no_commercial"
	ConditionNoValidLine     Condition = "no_valid_line"
	ConditionIncompleteLines Condition = "incomplete_lines"
)

// Blocker is one blocking condition with the fields or lines it concerns.
type Blocker struct {
	Condition Condition `json:"condition"`
	Fields    []string  `json:"fields,omitempty"`
	LineIDs   []string  `json:"lineIds,omitempty"`
}

// Verdict is the outcome of Validate.
type Verdict struct {
	CanSubmit bool      `json:"canSubmit"`
	Blockers  []Blocker `json:"blockers"`
}

// Has reports whether the verdict carries condition c.
func (v Verdict) Has(c Condition) bool {
	for _, b := range v.Blockers {
		if b.Condition == c {
			return true
		}
	}
	return false
}

type requiredHeader struct {
	OrderNumber string `json:"order_number" validate:"required"`
	ClientID    string `json:"client" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
}

var (
	validateOnce sync.Once
	headerCheck  *validator.Validate
)

func headerValidator() *validator.Validate {
	validateOnce.Do(func() {
		headerCheck = validator.New(validator.WithRequiredStructEnabled())
		headerCheck.RegisterTagNameFunc(func(f reflect.StructField) string {
			return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		})
	})
	return headerCheck
}

// Validate decides whether the draft may be submitted.
func Validate(d Draft) Verdict {
	var blockers []Blocker
	h := d.Header()
	err := headerValidator().Struct(requiredHeader{
		OrderNumber: strings.TrimSpace(h.OrderNumber),
		ClientID:    strings.TrimSpace(h.ClientID),
		Date:        strings.TrimSpace(h.Date),
	})
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		blockers = append(blockers, Blocker{Condition: ConditionMissingField, Fields: fields})
	}
	if _, ok := d.Client(); ok && strings.TrimSpace(h.CommercialID) == "" {
		blockers = append(blockers, Blocker{Condition: ConditionNoCommercial})
	}

	valid := 0
	var incomplete []string
	for _, l := range d.lines {
		if lineValid(l) {
			valid++
			continue
		}
		if n, ok := l.(NormalLine); ok && n.Incomplete() {
			incomplete = append(incomplete, n.id)
		}
	}
	if len(incomplete) > 0 {
		blockers = append(blockers, Blocker{Condition: ConditionIncompleteLines, LineIDs: incomplete})
	}
	if valid == 0 {
		blockers = append(blockers, Blocker{Condition: ConditionNoValidLine})
	}
	if blockers == nil {
		blockers = []Blocker{}
	}
	return Verdict{CanSubmit: len(blockers) == 0, Blockers: blockers}
}
