package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRFC3339Date(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)

	testCases := []struct {
		testName string
		value    RFC3339Date
		expected string
	}{
		{testName: "UTC без долей секунды", value: RFC3339Date{time.Date(2024, 5, 1, 12, 0, 0, 900, time.UTC)}, expected: `"2024-05-01T12:00:00Z"`},
		{testName: "Часовой пояс приводится к UTC", value: RFC3339Date{time.Date(2024, 5, 1, 15, 0, 0, 0, moscow)}, expected: `"2024-05-01T12:00:00Z"`},
		{testName: "Нулевое время", value: RFC3339Date{}, expected: `null`},
	}

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {
			data, err := json.Marshal(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(data))

			var parsed RFC3339Date
			require.NoError(t, json.Unmarshal(data, &parsed))
			assert.True(t, parsed.Equal(tc.value.Truncate(time.Second)))
		})
	}
}
