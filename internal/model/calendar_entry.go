package model

import "time"

// CalendarEntry is an entry as reported by a calendar store.
type CalendarEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// EntryInput carries the writable fields of a calendar entry.
type EntryInput struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// SameAs reports whether e already holds exactly the values of in.
func (e CalendarEntry) SameAs(in EntryInput) bool {
	return e.Title == in.Title &&
		e.Description == in.Description &&
		e.Location == in.Location &&
		e.Start.Equal(in.Start) &&
		e.End.Equal(in.End)
}
