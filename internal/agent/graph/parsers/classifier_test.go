package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage_ValidRange(t *testing.T) {
	for _, raw := range []string{"1", "2", "3", " 2 ", "3\n", "`1`"} {
		stage, err := ParseStage(raw)
		require.NoError(t, err, "raw=%q", raw)
		assert.GreaterOrEqual(t, stage, 1)
		assert.LessOrEqual(t, stage, 3)
	}
}

func TestParseStage_Malformed(t *testing.T) {
	for _, raw := range []string{"", "stage 2", "2.5", "four", "0", "4", "-1"} {
		_, err := ParseStage(raw)
		require.Error(t, err, "raw=%q", raw)

		var malformed *MalformedOutputError
		require.True(t, errors.As(err, &malformed), "raw=%q", raw)
		assert.Equal(t, "stage", malformed.Classifier)
		assert.Equal(t, raw, malformed.Raw)
	}
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("1")
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	d, err = ParseDecision("2")
	require.NoError(t, err)
	assert.Equal(t, 2, d)

	for _, raw := range []string{"0", "3", "cancel", ""} {
		_, err := ParseDecision(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestParseAppointmentID(t *testing.T) {
	id, err := ParseAppointmentID("2")
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	id, err = ParseAppointmentID("-1")
	require.NoError(t, err)
	assert.Equal(t, -1, id)

	for _, raw := range []string{"0", "-2", "id=2", ""} {
		_, err := ParseAppointmentID(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}
