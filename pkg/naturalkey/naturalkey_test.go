package naturalkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name      string
		latitude  float64
		longitude float64
		acqDate   string
		acqTime   string
		satellite string
		expected  string
	}{
		{
			name:      "standard detection",
			latitude:  37.7749,
			longitude: -122.4194,
			acqDate:   "2024-01-15",
			acqTime:   "1030",
			satellite: "N",
			expected:  "37.7749_-122.4194_2024-01-15_1030_N",
		},
		{
			name:      "rounds to 4 decimal places",
			latitude:  37.77494999,
			longitude: -122.41935001,
			acqDate:   "2024-01-15",
			acqTime:   "1030",
			satellite: "N",
			expected:  "37.7749_-122.4194_2024-01-15_1030_N",
		},
		{
			name:      "trailing zeros trimmed",
			latitude:  37.5,
			longitude: -122.0,
			acqDate:   "2024-01-15",
			acqTime:   "0105",
			satellite: "N21",
			expected:  "37.5_-122_2024-01-15_0105_N21",
		},
		{
			name:      "whitespace trimmed from string fields",
			latitude:  10.0,
			longitude: 20.0,
			acqDate:   " 2024-01-15 ",
			acqTime:   "1030 ",
			satellite: " N",
			expected:  "10_20_2024-01-15_1030_N",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, For(tt.latitude, tt.longitude, tt.acqDate, tt.acqTime, tt.satellite))
		})
	}
}

func TestForIsDeterministic(t *testing.T) {
	a := For(37.7749, -122.4194, "2024-01-15", "1030", "N")
	b := For(37.7749, -122.4194, "2024-01-15", "1030", "N")
	assert.Equal(t, a, b)
}

func TestForDistinguishesSatellites(t *testing.T) {
	a := For(37.7749, -122.4194, "2024-01-15", "1030", "N")
	b := For(37.7749, -122.4194, "2024-01-15", "1030", "N21")
	assert.NotEqual(t, a, b)
}
