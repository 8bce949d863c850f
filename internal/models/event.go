package models

import "time"

// Event is the wedding (or any other celebration) guests are invited to.
// StartsAt carries the event's own location so calendar-day triggers
// resolve in local time.
type Event struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	Timezone string    `json:"timezone"`
	Location string    `json:"location"`
	Venue    string    `json:"venue"`
}

// LocalStart returns StartsAt in the event's own timezone. An unknown
// timezone leaves StartsAt as stored.
func (e *Event) LocalStart() time.Time {
	if e.Timezone == "" {
		return e.StartsAt
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return e.StartsAt
	}
	return e.StartsAt.In(loc)
}
