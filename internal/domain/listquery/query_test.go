package listquery

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, PageCount(0, 10))
	assert.Equal(t, 1, PageCount(10, 10))
	assert.Equal(t, 2, PageCount(11, 10))
	assert.Equal(t, 0, PageCount(5, 0))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	q := Query{Page: -2, Limit: 500, Search: "  mh12 "}.Normalize(0)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxPageSize, q.Limit)
	assert.Equal(t, "mh12", q.Search)
	assert.Equal(t, 0, q.Offset())

	q = Query{Page: 3}.Normalize(20)
	assert.Equal(t, 20, q.Limit)
	assert.Equal(t, 40, q.Offset())
}

func TestValuesRoundTrip(t *testing.T) {
	t.Parallel()

	in := Query{
		Status:     "EXPIRING_SOON",
		Search:     "kumar",
		Page:       2,
		Limit:      25,
		ExpiryFrom: date(2026, 4, 1),
		ExpiryTo:   date(2026, 4, 30),
	}
	values := in.Values()
	assert.Equal(t, "2026-04-01", values.Get("expiryFrom"))

	out, err := FromValues(values)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFromValuesReportsBadDates(t *testing.T) {
	t.Parallel()

	_, err := FromValues(url.Values{"expiryFrom": {"01/04/2026"}, "expiryTo": {"soon"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expiryFrom")
	assert.Contains(t, err.Error(), "expiryTo")
}

func TestValidateRange(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRange(nil, date(2026, 1, 1)))
	assert.NoError(t, ValidateRange(date(2026, 1, 1), date(2026, 1, 1)))
	assert.ErrorIs(t, ValidateRange(date(2026, 1, 2), date(2026, 1, 1)), ErrInvalidDateRange)
}

func TestParseLookupType(t *testing.T) {
	got, ok := ParseLookupType(" Vehicle ")
	require.True(t, ok)
	assert.Equal(t, LookupVehicle, got)

	got, ok = ParseLookupType("mobile")
	require.True(t, ok)
	assert.Equal(t, LookupMobile, got)

	_, ok = ParseLookupType("email")
	assert.False(t, ok)
}
