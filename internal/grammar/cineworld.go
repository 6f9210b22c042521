package grammar

import (
	"strconv"
	"time"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/mailbox"
)

var (
	cineworldReference = newField("booking reference", `Your booking reference\s+number\s+is:[ \t]*\*?([A-Za-z0-9]+)`)
	cineworldDetails   = newField("booking details", `(?s)(You are going to see:\s.*)Use your e-ticket`)

	cineworldFilm          = newField("film name", `You are going to see:[ \t]*\*?([^*\n]+)`)
	cineworldAddress       = newField("cinema address", `Cinema address?:[ \t]*\*?([^*\n]+)`)
	cineworldDate          = newField("date", `Date:[ \t]*\*?([^*\n]+)`)
	cineworldAttendees     = newField("ticket count", `Number of people going:[ \t]*\*?([^*\n]+)`)
	cineworldScreen        = newField("screen", `Screen:[ \t]*\*?([^*\n]+)`)
	cineworldSeats         = newField("seats", `Seat\(s\):[ \t]*\*?([^*\n]+)`)
	cineworldCertification = newField("certification", `Certification:[ \t]*\*?([^*\n]+)`)
	cineworldRunningTime   = newField("running time in minutes", `Running time:[ \t]*\*?([^*\s]+) minutes`)
)

var cineworldDateLayouts = []string{"02/01/2006 15:04", "2/1/2006 15:04"}

// Cineworld parses Cineworld e-ticket emails. Dates are day/month/year with
// a 24-hour time and are read in loc.
type Cineworld struct {
	loc *time.Location
}

func NewCineworld(loc *time.Location) *Cineworld {
	if loc == nil {
		loc = time.UTC
	}
	return &Cineworld{loc: loc}
}

func (g *Cineworld) Name() string { return "cineworld" }

func (g *Cineworld) Query() mailbox.Query {
	return mailbox.Query{
		From:     "tickets@cineworldtickets.com",
		Subjects: []string{"cineworld", "tickets for"},
	}
}

func (g *Cineworld) Extract(body string) (booking.Fields, error) {
	mail := extractor{vendor: g.Name(), segment: "mail body", text: body}

	reference, err := mail.one(cineworldReference)
	if err != nil {
		return booking.Fields{}, err
	}
	details, err := mail.within(cineworldDetails)
	if err != nil {
		return booking.Fields{}, err
	}

	film, err := details.one(cineworldFilm)
	if err != nil {
		return booking.Fields{}, err
	}
	address, err := details.one(cineworldAddress)
	if err != nil {
		return booking.Fields{}, err
	}
	date, err := details.one(cineworldDate)
	if err != nil {
		return booking.Fields{}, err
	}
	attendees, err := details.integer(cineworldAttendees)
	if err != nil {
		return booking.Fields{}, err
	}
	screen, err := details.one(cineworldScreen)
	if err != nil {
		return booking.Fields{}, err
	}
	seats, err := details.one(cineworldSeats)
	if err != nil {
		return booking.Fields{}, err
	}
	certification, err := details.one(cineworldCertification)
	if err != nil {
		return booking.Fields{}, err
	}
	runtime, err := details.integer(cineworldRunningTime)
	if err != nil {
		return booking.Fields{}, err
	}
	if runtime <= 0 {
		return booking.Fields{}, details.malformed(cineworldRunningTime.label, strconv.Itoa(runtime), errNonPositive)
	}
	if attendees <= 0 {
		return booking.Fields{}, details.malformed(cineworldAttendees.label, strconv.Itoa(attendees), errNonPositive)
	}

	start, err := parseTime(date, g.loc, cineworldDateLayouts)
	if err != nil {
		return booking.Fields{}, details.malformed(cineworldDate.label, date, err)
	}

	return booking.Fields{
		Chain:            "Cineworld",
		Title:            film,
		Film:             film,
		Start:            start,
		RuntimeMinutes:   runtime,
		Address:          address,
		AttendeeCount:    attendees,
		Seats:            seats,
		Screen:           screen,
		Rating:           certification,
		BookingReference: reference,
	}, nil
}
