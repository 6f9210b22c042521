// Package booking assembles canonical booking events from extracted email
// fields and pairs them with cancellation records.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/cinesync/internal/model"
)

const (
	// PaddingMinutes is added to every runtime to cover adverts and trailers.
	PaddingMinutes = 25
	// DefaultRuntimeMinutes is used when neither the vendor nor the
	// metadata service knows the runtime.
	DefaultRuntimeMinutes = 120
	// ProvenanceTag is embedded in every description this program writes.
	// The reconciler finds its own entries by searching for it, so it must
	// never change.
	ProvenanceTag = "#cinesync-booking"
	// UnknownRating is shown when the vendor does not provide a certificate.
	UnknownRating = "Unknown"
)

// ErrInvalidBooking is returned when extracted fields cannot form a booking.
var ErrInvalidBooking = errors.New("invalid booking")

// Geocoder resolves a free-text address to formatted candidates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) ([]string, error)
}

// Fields holds raw values extracted by a vendor grammar.
type Fields struct {
	Chain            string
	Title            string
	Film             string
	Start            time.Time
	RuntimeMinutes   int // zero when unknown
	Address          string
	AttendeeCount    int
	Seats            string
	Screen           string
	Rating           string
	BookingReference string
	SourceLink       string
}

type Builder struct {
	geocoder Geocoder
	logger   *slog.Logger
}

// NewBuilder returns a Builder. geocoder may be nil, in which case
// locations are kept as written by the vendor.
func NewBuilder(geocoder Geocoder, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{geocoder: geocoder, logger: logger}
}

// Build turns f into an immutable BookingEvent.
func (b *Builder) Build(ctx context.Context, f Fields) (model.BookingEvent, error) {
	chain := strings.TrimSpace(f.Chain)
	title := strings.TrimSpace(f.Title)
	film := strings.TrimSpace(f.Film)
	if film == "" {
		film = title
	}

	if chain == "" || title == "" {
		return model.BookingEvent{}, fmt.Errorf("%w: chain and title are required", ErrInvalidBooking)
	}
	if f.Start.IsZero() {
		return model.BookingEvent{}, fmt.Errorf("%w: missing start time", ErrInvalidBooking)
	}
	if f.AttendeeCount <= 0 {
		return model.BookingEvent{}, fmt.Errorf("%w: attendee count %d", ErrInvalidBooking, f.AttendeeCount)
	}

	runtime := f.RuntimeMinutes
	if runtime <= 0 {
		runtime = DefaultRuntimeMinutes
	}

	rating := strings.TrimSpace(f.Rating)
	if rating == "" {
		rating = UnknownRating
	}

	ev := model.BookingEvent{
		Chain:            chain,
		Title:            title,
		Film:             film,
		Start:            f.Start,
		End:              FinishTime(f.Start, runtime),
		Location:         b.resolveLocation(ctx, chain, f.Address),
		AttendeeCount:    f.AttendeeCount,
		Seats:            strings.TrimSpace(f.Seats),
		Screen:           strings.TrimSpace(f.Screen),
		Rating:           rating,
		BookingReference: strings.TrimSpace(f.BookingReference),
		RuntimeMinutes:   runtime,
		SourceLink:       strings.TrimSpace(f.SourceLink),
	}
	ev.Description = Describe(ev)
	return ev, nil
}

// FinishTime returns start plus the runtime and the fixed padding.
func FinishTime(start time.Time, runtimeMinutes int) time.Time {
	return start.Add(time.Duration(runtimeMinutes+PaddingMinutes) * time.Minute)
}

func (b *Builder) resolveLocation(ctx context.Context, chain, address string) string {
	raw := strings.TrimSpace(chain + ", " + strings.TrimSpace(address))
	if b.geocoder == nil {
		return raw
	}

	candidates, err := b.geocoder.Geocode(ctx, raw)
	if err != nil {
		b.logger.Warn("geocode failed, keeping vendor address", "address", raw, "error", err)
		return raw
	}
	if len(candidates) == 0 {
		return raw
	}
	if first := strings.TrimSpace(candidates[0]); first != "" {
		return first
	}
	return raw
}

// Describe renders the description payload for ev. The output depends only
// on ev's fields so repeated runs produce identical text.
func Describe(ev model.BookingEvent) string {
	var sb strings.Builder
	if ev.BookingReference != "" {
		sb.WriteString("Booking reference: " + ev.BookingReference + "\n")
	}
	sb.WriteString("Attendees: " + strconv.Itoa(ev.AttendeeCount) + "\n")
	if ev.Seats != "" {
		sb.WriteString("Seats: " + ev.Seats + "\n")
	}
	if ev.Screen != "" {
		sb.WriteString("Screen: " + ev.Screen + "\n")
	}
	sb.WriteString("Rating: " + ev.Rating + "\n")
	sb.WriteString("Runtime: " + strconv.Itoa(ev.RuntimeMinutes) + " minutes\n")
	if ev.SourceLink != "" {
		sb.WriteString("Source: " + ev.SourceLink + "\n")
	}
	sb.WriteString("\n" + ProvenanceTag)
	return sb.String()
}
