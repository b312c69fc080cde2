// Package schema validates structured records before they are handed to
// storage.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"call-recap-service/internal/models"
)

// ErrInvalidRecord wraps every validation failure.
var ErrInvalidRecord = errors.New("invalid record")

// Validator checks struct tags plus cross-field rules on records.
type Validator struct {
	v *validator.Validate
}

// New creates a validator.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so messages match the stored document.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterStructValidation(sessionTimes, models.CallSession{})
	v.RegisterStructValidation(summaryScore, models.CallSummary{})

	return &Validator{v: v}
}

func sessionTimes(sl validator.StructLevel) {
	s := sl.Current().Interface().(models.CallSession)
	if s.EndedAt != nil && s.EndedAt.Before(s.StartedAt) {
		sl.ReportError(s.EndedAt, "endedAt", "EndedAt", "gtefield", "startedAt")
	}
}

func summaryScore(sl validator.StructLevel) {
	s := sl.Current().Interface().(models.CallSummary)
	if s.Quality.Total < 0 || s.Quality.Total > 1 {
		sl.ReportError(s.Quality.Total, "quality", "Quality", "range", "0..1")
	}
}

// Validate checks any tagged struct.
func (v *Validator) Validate(event any) error {
	err := v.v.Struct(event)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, trimNamespace(e.Namespace())+": "+describe(e))
	}
	log.Debug().Strs("violations", messages).Msg("Validation failed")
	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(messages, "; "))
}

// ValidateRecord checks a record before handoff.
func (v *Validator) ValidateRecord(rec models.StructuredRecord) error {
	return v.Validate(rec)
}

func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "gtefield":
		return "must not be before " + e.Param()
	case "range":
		return "must be within " + e.Param()
	default:
		return "is invalid"
	}
}
