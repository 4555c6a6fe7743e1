package model

import "fmt"

// Appointment is an immutable record from the scheduling data source.
// The graph only reads it; it is never mutated or reordered after fetch.
type Appointment struct {
	ID          int    `json:"id"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

// String renders the record the way the selection prompt expects it.
func (a Appointment) String() string {
	return fmt.Sprintf("{id=%d, time=%q, description=%q}", a.ID, a.Time, a.Description)
}
