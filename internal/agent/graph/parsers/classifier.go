// Package parsers decodes the constrained single-token outputs of the
// classifier model calls. Every classifier is instructed to emit one bare
// integer; anything else is a MalformedOutputError, which aborts the run
// rather than guessing a route.
package parsers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apptflow-poc/server/internal/agent/model"
)

// MalformedOutputError reports a classifier response that could not be
// decoded as the expected integer token.
type MalformedOutputError struct {
	Classifier string // which classifier produced the output
	Raw        string // the raw response content
	Reason     string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed %s classifier output %q: %s", e.Classifier, e.Raw, e.Reason)
}

// decodeToken strips whitespace and surrounding markdown fences the model
// sometimes emits despite instructions, then parses the remainder as an int.
func decodeToken(classifier, raw string) (int, error) {
	token := strings.TrimSpace(raw)
	token = strings.Trim(token, "`")
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, &MalformedOutputError{Classifier: classifier, Raw: raw, Reason: "empty response"}
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, &MalformedOutputError{Classifier: classifier, Raw: raw, Reason: "not an integer"}
	}
	return n, nil
}

// ParseStage decodes the stage-router output, one of {1, 2, 3}.
func ParseStage(raw string) (int, error) {
	n, err := decodeToken("stage", raw)
	if err != nil {
		return 0, err
	}
	if n < model.StageFreshCancellation || n > model.StageRescheduleOrCancel {
		return 0, &MalformedOutputError{Classifier: "stage", Raw: raw, Reason: "stage out of range 1..3"}
	}
	return n, nil
}

// ParseDecision decodes the reschedule-or-cancel output, one of {1, 2}.
func ParseDecision(raw string) (int, error) {
	n, err := decodeToken("reschedule-or-cancel", raw)
	if err != nil {
		return 0, err
	}
	if n != model.DecisionReschedule && n != model.DecisionCancel {
		return 0, &MalformedOutputError{Classifier: "reschedule-or-cancel", Raw: raw, Reason: "decision out of range 1..2"}
	}
	return n, nil
}

// ParseAppointmentID decodes the appointment-selection output: a domain id,
// or the -1 sentinel when the classifier could not resolve the reference.
func ParseAppointmentID(raw string) (int, error) {
	n, err := decodeToken("appointment-selection", raw)
	if err != nil {
		return 0, err
	}
	if n != model.AppointmentUnresolved && n <= 0 {
		return 0, &MalformedOutputError{Classifier: "appointment-selection", Raw: raw, Reason: "id must be positive or the -1 sentinel"}
	}
	return n, nil
}
