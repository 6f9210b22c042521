// Package grammar extracts booking fields from vendor confirmation emails.
//
// Each cinema chain has one Grammar. A grammar first isolates the booking
// details block of a message and then applies its field extractors to that
// block only.
package grammar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/mailbox"
	"github.com/dukerupert/cinesync/internal/model"
)

// ErrNotBooking means the message is not a booking confirmation. It is an
// expected outcome, not a failure.
var ErrNotBooking = errors.New("not a booking email")

// Grammar is the extraction ruleset for one cinema chain.
type Grammar interface {
	// Name is the lower-case chain identity used in config and logs.
	Name() string
	// Query selects the chain's confirmation emails.
	Query() mailbox.Query
	// Extract returns the raw booking fields found in body. RuntimeMinutes
	// is zero when the vendor does not state it.
	Extract(body string) (booking.Fields, error)
}

// CancellationGrammar is implemented by chains whose cancellation notices
// can be recognized.
type CancellationGrammar interface {
	CancellationQuery() mailbox.Query
	ExtractCancellation(body string) (model.CancellationRecord, error)
}

type Kind int

const (
	// KindAmbiguous: a single-valued field matched more than once.
	KindAmbiguous Kind = iota + 1
	// KindMalformed: a field matched but its value could not be parsed.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindAmbiguous:
		return "ambiguous"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FieldError reports a grammar defect. It usually means the vendor changed
// its email template.
type FieldError struct {
	Kind    Kind
	Vendor  string
	Field   string
	Segment string // name of the text searched
	Excerpt string
	Err     error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: %s field %q in %s", e.Vendor, e.Kind, e.Field, e.Segment)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Excerpt != "" {
		msg += fmt.Sprintf(" (near %q)", e.Excerpt)
	}
	return msg
}

func (e *FieldError) Unwrap() error { return e.Err }

// IsDefect reports whether err is a grammar defect rather than a soft miss.
func IsDefect(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

const excerptLen = 120

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > excerptLen {
		return s[:excerptLen] + "..."
	}
	return s
}

// field is a labelled pattern. The pattern's first capture group holds the
// value.
type field struct {
	label   string
	pattern *regexp.Regexp
}

func newField(label, pattern string) field {
	return field{label: label, pattern: regexp.MustCompile(pattern)}
}

// extractor applies fields for one vendor against one named segment.
type extractor struct {
	vendor  string
	segment string
	text    string
}

// one returns the single trimmed value of f. No match yields ErrNotBooking;
// several matches yield a KindAmbiguous FieldError.
func (x extractor) one(f field) (string, error) {
	matches := f.pattern.FindAllStringSubmatch(x.text, -1)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no %s in %s", ErrNotBooking, f.label, x.segment)
	case 1:
		return strings.TrimSpace(matches[0][1]), nil
	default:
		return "", &FieldError{
			Kind:    KindAmbiguous,
			Vendor:  x.vendor,
			Field:   f.label,
			Segment: x.segment,
			Excerpt: excerpt(x.text),
			Err:     fmt.Errorf("matched %d times", len(matches)),
		}
	}
}

// all returns every trimmed value of f, or ErrNotBooking when there is none.
func (x extractor) all(f field) ([]string, error) {
	matches := f.pattern.FindAllStringSubmatch(x.text, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no %s in %s", ErrNotBooking, f.label, x.segment)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out, nil
}

// integer returns the single value of f parsed strictly as a base-10 int.
func (x extractor) integer(f field) (int, error) {
	s, err := x.one(f)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, x.malformed(f.label, s, err)
	}
	return n, nil
}

func (x extractor) malformed(label, value string, err error) *FieldError {
	return &FieldError{
		Kind:    KindMalformed,
		Vendor:  x.vendor,
		Field:   label,
		Segment: x.segment,
		Excerpt: excerpt(value),
		Err:     err,
	}
}

// within narrows x to the single match of block.
func (x extractor) within(block field) (extractor, error) {
	text, err := x.one(block)
	if err != nil {
		return extractor{}, err
	}
	return extractor{vendor: x.vendor, segment: block.label, text: text}, nil
}
