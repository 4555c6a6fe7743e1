package appointments

import (
	"context"
	"fmt"

	"github.com/apptflow-poc/server/internal/agent/model"
)

// Source is the scheduling-backend collaborator. The graph treats it as a
// black box: no retries here, and the returned slice is stored verbatim.
type Source interface {
	// Fetch returns the customer's scheduled appointments in backend order.
	Fetch(ctx context.Context) ([]model.Appointment, error)

	// Cancel asks the backend to cancel the appointment and returns a
	// human-readable receipt.
	Cancel(ctx context.Context, appointmentID int) (string, error)
}

// StaticSource serves a fixed appointment book. It stands in for the real
// scheduling backend in this POC, the same way the product tools serve mock
// inventory.
type StaticSource struct {
	book []model.Appointment
}

// NewStaticSource returns a source preloaded with the default fixture book.
func NewStaticSource() *StaticSource {
	return &StaticSource{book: DefaultBook()}
}

// NewStaticSourceWith returns a source serving exactly the given records.
func NewStaticSourceWith(book []model.Appointment) *StaticSource {
	return &StaticSource{book: book}
}

func (s *StaticSource) Fetch(ctx context.Context) ([]model.Appointment, error) {
	out := make([]model.Appointment, len(s.book))
	copy(out, s.book)
	return out, nil
}

func (s *StaticSource) Cancel(ctx context.Context, appointmentID int) (string, error) {
	for _, a := range s.book {
		if a.ID == appointmentID {
			return fmt.Sprintf("Appointment %d cancelled.", appointmentID), nil
		}
	}
	return "", fmt.Errorf("appointment not found: %d", appointmentID)
}

// DefaultBook returns the fixture appointments used across the POC.
func DefaultBook() []model.Appointment {
	return []model.Appointment{
		{
			ID:          1,
			Time:        "2025-01-01 10:00:00",
			Description: "Home cleaning service",
		},
		{
			ID:          2,
			Time:        "2025-01-05 14:00:00",
			Description: "Plumbing repair",
		},
	}
}

var _ Source = (*StaticSource)(nil)
