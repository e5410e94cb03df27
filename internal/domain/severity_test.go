package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input    string
		expected Severity
		wantErr  bool
	}{
		{"critical", SeverityCritical, false},
		{"high", SeverityHigh, false},
		{"medium", SeverityMedium, false},
		{"low", SeverityLow, false},
		{"HIGH", SeverityUnknown, true},
		{"severe", SeverityUnknown, true},
		{" low", SeverityUnknown, true},
		{"", SeverityUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSeverity)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSeverity_JSON(t *testing.T) {
	var r Report
	require.NoError(t, json.Unmarshal([]byte(`{"lat":1,"lon":2,"severity":"critical"}`), &r))
	assert.Equal(t, SeverityCritical, r.Severity)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"critical"`)

	err = json.Unmarshal([]byte(`{"severity":"extreme"}`), &r)
	require.ErrorIs(t, err, ErrInvalidSeverity)
}

func TestSeverity_MarshalUnknown(t *testing.T) {
	_, err := json.Marshal(Report{Geo: Geo{Lat: 1, Lon: 2}})
	require.ErrorIs(t, err, ErrInvalidSeverity)

	_, err = Severity(9).MarshalText()
	require.ErrorIs(t, err, ErrInvalidSeverity)

	_, err = SerializeReport(Report{ID: "r-1"})
	require.ErrorIs(t, err, ErrInvalidSeverity)
}

func TestSeverity_Ordering(t *testing.T) {
	assert.Greater(t, SeverityCritical, SeverityHigh)
	assert.Greater(t, SeverityHigh, SeverityMedium)
	assert.Greater(t, SeverityMedium, SeverityLow)
	assert.False(t, SeverityUnknown.Valid())
	assert.Equal(t, "unknown", SeverityUnknown.String())
}

func TestWeights_Multiplier(t *testing.T) {
	w := DefaultWeights()

	m, err := w.Multiplier(SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, 2.5, m)

	_, err = w.Multiplier(SeverityUnknown)
	require.ErrorIs(t, err, ErrInvalidSeverity)
}
