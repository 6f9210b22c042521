package grammar

import (
	"strings"
	"time"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/mailbox"
)

var (
	picturehouseReference = newField("booking reference", `\*([A-Za-z0-9]{4,})\*`)
	picturehouseDetails   = newField("booking details", `(?s)Your Order(.*)About your order`)

	picturehouseFilm   = newField("film name", `Film/Event:[ \t]*([^\n]+)`)
	picturehouseCinema = newField("cinema name", `Cinema:[ \t]*([^\n]+)`)
	picturehouseDate   = newField("date", `Date:[ \t]*([^\n]+)`)
	picturehouseTime   = newField("time", `Time:[ \t]*([^\n]+)`)
	picturehouseScreen = newField("screen", `Screen:[ \t]*([^\n]+)`)
	// Every seat-shaped token in the block counts as a seat, including
	// any that appear outside the ticket lines.
	picturehouseSeats = newField("seats", `([A-Z]+-[0-9]*)`)
)

var picturehouseDateLayouts = []string{
	"Monday 2 January 2006 15:04",
	"Monday 2 January 2006 3:04 PM",
	"Monday 2 January 2006 3:04pm",
	"Mon 2 Jan 2006 15:04",
	"Monday, 2 January 2006 15:04",
	"2 January 2006 15:04",
	"2 Jan 2006 15:04",
	"02/01/2006 15:04",
	"2006-01-02 15:04",
}

// Picturehouse parses Picturehouse booking confirmations. The email states
// no running time, so RuntimeMinutes is left zero for the resolver, and the
// attendee count is the number of seats.
type Picturehouse struct {
	loc *time.Location
}

func NewPicturehouse(loc *time.Location) *Picturehouse {
	if loc == nil {
		loc = time.UTC
	}
	return &Picturehouse{loc: loc}
}

func (g *Picturehouse) Name() string { return "picturehouse" }

func (g *Picturehouse) Query() mailbox.Query {
	return mailbox.Query{
		From:     "no-reply@picturehouses.com",
		Subjects: []string{"Booking Confirmation for"},
	}
}

func (g *Picturehouse) Extract(body string) (booking.Fields, error) {
	mail := extractor{vendor: g.Name(), segment: "mail body", text: body}

	reference, err := mail.one(picturehouseReference)
	if err != nil {
		return booking.Fields{}, err
	}
	details, err := mail.within(picturehouseDetails)
	if err != nil {
		return booking.Fields{}, err
	}

	film, err := details.one(picturehouseFilm)
	if err != nil {
		return booking.Fields{}, err
	}
	cinema, err := details.one(picturehouseCinema)
	if err != nil {
		return booking.Fields{}, err
	}
	date, err := details.one(picturehouseDate)
	if err != nil {
		return booking.Fields{}, err
	}
	clock, err := details.one(picturehouseTime)
	if err != nil {
		return booking.Fields{}, err
	}
	screen, err := details.one(picturehouseScreen)
	if err != nil {
		return booking.Fields{}, err
	}
	seats, err := details.all(picturehouseSeats)
	if err != nil {
		return booking.Fields{}, err
	}

	combined := date + " " + clock
	start, err := parseTime(combined, g.loc, picturehouseDateLayouts)
	if err != nil {
		return booking.Fields{}, details.malformed(picturehouseDate.label, combined, err)
	}

	return booking.Fields{
		Chain:            "Picturehouse",
		Title:            film,
		Film:             film,
		Start:            start,
		Address:          cinema,
		AttendeeCount:    len(seats),
		Seats:            strings.Join(seats, ", "),
		Screen:           screen,
		Rating:           booking.UnknownRating,
		BookingReference: reference,
	}, nil
}
