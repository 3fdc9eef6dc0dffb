package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/generic"
)

func TestTimeOfDay_Parse(t *testing.T) {
	tod, err := generic.ParseTimeOfDay("19:30")
	require.NoError(t, err)
	assert.Equal(t, 19, tod.Hour())
	assert.Equal(t, 30, tod.Minute())
	assert.Equal(t, "19:30", tod.String())

	for _, bad := range []string{"", "7", "24:00", "12:60", "ab:cd"} {
		_, err := generic.ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDay_OnUsesLocation(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	// 2025-03-10 20:00 UTC is already 2025-03-11 04:00 in Manila.
	date := time.Date(2025, time.March, 10, 20, 0, 0, 0, time.UTC)

	got := generic.MustTimeOfDay("08:00").On(date, manila)

	assert.Equal(t, time.Date(2025, time.March, 11, 8, 0, 0, 0, manila), got)
	assert.Equal(t, time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC),
		generic.MustTimeOfDay("08:00").On(date, nil))
}

func TestWholeMinutes_Floors(t *testing.T) {
	assert.Equal(t, 0, generic.WholeMinutes(-time.Hour))
	assert.Equal(t, 0, generic.WholeMinutes(59*time.Second))
	assert.Equal(t, 15, generic.WholeMinutes(15*time.Minute+59*time.Second))
}

func TestPeriod_ContainsAndDays(t *testing.T) {
	p, err := generic.ParsePeriod("2025-03-01", "2025-03-03")
	require.NoError(t, err)

	assert.True(t, p.Contains(time.Date(2025, time.March, 3, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, p.Days(), 3)

	open, err := generic.ParsePeriod("", "2025-03-03")
	require.NoError(t, err)
	assert.True(t, open.Contains(time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, open.Days())

	_, err = generic.ParsePeriod("2025-03-05", "2025-03-01")
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	_, err = generic.ParsePeriod("03/01/2025", "")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestErrorHelpers(t *testing.T) {
	ex := &generic.ExceedsCandidateError{Requested: 200, Candidate: 165}
	assert.ErrorIs(t, ex, generic.ErrExceedsCandidate)
	assert.True(t, generic.IsClientError(ex))
	assert.False(t, generic.IsConflict(ex))

	dup := &generic.DuplicateRequestError{TimeEntryID: "te-1", ExistingID: "ot-1"}
	assert.True(t, generic.IsConflict(dup))

	nf := generic.NotFound("overtime request", "ot-9")
	assert.True(t, generic.IsNotFound(nf))
	assert.Equal(t, "overtime request ot-9 not found", nf.Error())

	assert.True(t, generic.IsRetryable(generic.ErrConcurrentModification))

	v := &generic.ValidationError{}
	assert.NoError(t, v.OrNil())
	v.Add("projects", "at least one project is required")
	err := v.OrNil()
	require.Error(t, err)
	var ve *generic.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.Has("projects"))
	assert.Equal(t, map[string]string{"projects": "at least one project is required"}, ve.ToMap())
}
