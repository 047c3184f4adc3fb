package crashid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintFormat(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC)

	for _, throttle := range []int{0, 1} {
		id := Mint(ts, throttle)
		require.Len(t, id, 36)
		assert.True(t, Validate(id, true), "id %q should validate strictly", id)
		assert.Equal(t, "20240307", ExtractDate(id))
		assert.Equal(t, throttle, ExtractThrottle(id))
	}
}

func TestMintIsUnique(t *testing.T) {
	ts := time.Now()
	a := Mint(ts, 0)
	b := Mint(ts, 0)
	assert.NotEqual(t, a, b)
}

func TestValidateRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-a-crash-id",
		"de1bb258-cbbf-4589-a673-34f80016091", // too short
		"de1bb258-cbbf-4589-a673-34f8001609188",
	}
	for _, c := range cases {
		assert.False(t, Validate(c, false), "expected %q to be invalid", c)
	}
}

func TestValidateStrictThrottleNibble(t *testing.T) {
	ts := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	id := Mint(ts, 0)
	// Overwrite the throttle digit (position -7) with a value outside {0,1}.
	bad := id[:len(id)-7] + "5" + id[len(id)-6:]
	assert.True(t, Validate(bad, false))
	assert.False(t, Validate(bad, true))
}

func TestValidateRoundTrip(t *testing.T) {
	ts := time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)
	for _, throttle := range []int{0, 1} {
		id := Mint(ts, throttle)
		assert.True(t, Validate(id, true))
	}
}
