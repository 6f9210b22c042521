package booking

import "github.com/dukerupert/cinesync/internal/model"

// MatchCancellations pairs every booking of one chain with the first
// cancellation sharing its identity key. Input order is preserved.
func MatchCancellations(chain string, bookings []model.BookingEvent, cancellations []model.CancellationRecord) []model.MatchedBooking {
	out := make([]model.MatchedBooking, 0, len(bookings))
	for _, b := range bookings {
		mb := model.MatchedBooking{Chain: chain, Booking: b}
		for i := range cancellations {
			if cancellations[i].Matches(b) {
				c := cancellations[i]
				mb.Cancellation = &c
				break
			}
		}
		out = append(out, mb)
	}
	return out
}
