package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisplayDate(t *testing.T) {
	parsed, err := ParseDisplayDate("06/15/1980")
	require.NoError(t, err)
	assert.Equal(t, time.Date(1980, time.June, 15, 0, 0, 0, 0, time.UTC), parsed)

	_, err = ParseDisplayDate("1980-06-15")
	assert.Error(t, err)

	_, err = ParseDisplayDate("13/45/1980")
	assert.Error(t, err)
}

func TestRFC3339RoundTrip(t *testing.T) {
	s := NowRFC3339()
	parsed, err := ParseRFC3339(s)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), parsed, time.Minute)
}
