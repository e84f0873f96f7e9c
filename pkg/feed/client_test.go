package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight
37.77490,-122.41940,330.5,0.39,0.36,2024-01-15,1030,N,VIIRS,n,2.0NRT,290.1,12.3,D
37.77500,-122.41950,345.2,0.41,0.37,2024-01-15,1035,N,VIIRS,h,2.0NRT,295.8,18.7,D
`

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "37.77490", rows[0].Latitude)
	assert.Equal(t, "-122.41940", rows[0].Longitude)
	assert.Equal(t, "2024-01-15", rows[0].AcqDate)
	assert.Equal(t, "1030", rows[0].AcqTime)
	assert.Equal(t, "N", rows[0].Satellite)
	assert.Equal(t, "VIIRS", rows[0].Instrument)
	assert.Equal(t, "12.3", rows[0].FRP)
	assert.Equal(t, "h", rows[1].Confidence)
}

func TestParseCSVHandlesReorderedColumns(t *testing.T) {
	doc := "acq_date,acq_time,satellite,latitude,longitude\n2024-01-15,105,N21,10.5,20.5\n"

	rows, err := ParseCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "10.5", rows[0].Latitude)
	assert.Equal(t, "105", rows[0].AcqTime)
	assert.Equal(t, "N21", rows[0].Satellite)
	assert.Empty(t, rows[0].FRP)
}

func TestParseCSVEmptyDocument(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Header only, no data rows
	rows, err = ParseCSV(strings.NewReader("latitude,longitude\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseCSVSkipsShortRecords(t *testing.T) {
	doc := "latitude,longitude,acq_date\n37.0\n38.0,-122.0,2024-01-15\n"

	rows, err := ParseCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// The short record parses with missing fields empty
	assert.Equal(t, "37.0", rows[0].Latitude)
	assert.Empty(t, rows[0].Longitude)
	assert.Equal(t, "38.0", rows[1].Latitude)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5"))
}
