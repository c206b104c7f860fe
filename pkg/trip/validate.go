package trip

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ErrValidation marks a malformed trip context. Such contexts are rejected
// before any rule runs.
var ErrValidation = errors.New("trip context validation failed")

// ValidationError lists the offending fields.
type ValidationError struct {
	Fields []string
	Detail string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrValidation, e.Detail, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and value ranges.
func (c Context) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Detail: err.Error()}
	}
	ve := &ValidationError{Detail: "invalid fields"}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, fmt.Sprintf("%s:%s", fe.Namespace(), fe.Tag()))
	}
	return ve
}

// Prepare normalizes and validates a raw context and derives its season.
// The returned value is the snapshot handed to the pipeline.
func Prepare(c Context) (Context, error) {
	out := c.Clone()
	out.DestinationID = NormalizeDestination(out.DestinationID)
	for i, a := range out.Activities {
		out.Activities[i] = strings.ToLower(strings.TrimSpace(a))
	}
	if out.Season == "" && !out.StartDate.IsZero() {
		out.Season = DeriveSeason(out.StartDate, out.Geo.Lat)
	}
	if err := out.Validate(); err != nil {
		return Context{}, err
	}
	return out, nil
}

var upper = cases.Upper(language.Und)

// NormalizeDestination folds destination identifiers ("is-iceland ", "ＩＳ-ICELAND")
// to one canonical upper-case form.
func NormalizeDestination(id string) string {
	return upper.String(norm.NFKC.String(strings.TrimSpace(id)))
}

// DeriveSeason maps a start date to a meteorological season, flipping
// for the southern hemisphere when the latitude is known.
func DeriveSeason(start time.Time, lat *float64) Season {
	var s Season
	switch start.Month() {
	case time.December, time.January, time.February:
		s = SeasonWinter
	case time.March, time.April, time.May:
		s = SeasonSpring
	case time.June, time.July, time.August:
		s = SeasonSummer
	default:
		s = SeasonAutumn
	}
	if lat != nil && *lat < 0 {
		switch s {
		case SeasonWinter:
			return SeasonSummer
		case SeasonSummer:
			return SeasonWinter
		case SeasonSpring:
			return SeasonAutumn
		default:
			return SeasonSpring
		}
	}
	return s
}
