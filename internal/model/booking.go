package model

import "time"

// BookingEvent is one confirmed cinema booking as parsed from a
// confirmation email. Values are built by booking.Builder and never
// mutated afterwards.
type BookingEvent struct {
	Chain            string    `json:"chain"`
	Title            string    `json:"title"`
	Film             string    `json:"film"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Location         string    `json:"location"`
	AttendeeCount    int       `json:"attendee_count"`
	Seats            string    `json:"seats"`
	Screen           string    `json:"screen,omitempty"`
	Rating           string    `json:"rating"`
	BookingReference string    `json:"booking_reference"`
	Description      string    `json:"description"`
	RuntimeMinutes   int       `json:"runtime_minutes"`
	SourceLink       string    `json:"source_link,omitempty"`
}

// CancellationRecord marks the booking with the same identity as no
// longer valid.
type CancellationRecord struct {
	Chain    string    `json:"chain"`
	Film     string    `json:"film"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location"`
}

// Matches reports whether c cancels b. The comparison is exact on film,
// start, end and location; there is no tolerance window.
func (c CancellationRecord) Matches(b BookingEvent) bool {
	return c.Film == b.Film &&
		c.Start.Equal(b.Start) &&
		c.End.Equal(b.End) &&
		c.Location == b.Location
}

// MatchedBooking pairs a booking with the cancellation that matched it, if any.
type MatchedBooking struct {
	Chain        string
	Booking      BookingEvent
	Cancellation *CancellationRecord
}
