package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tick-wrangler/market"
)

func TestAllowDuplicatesKeepsTies(t *testing.T) {
	o := New(AllowDuplicates)
	for i, ts := range []int64{1, 2, 2, 3} {
		d, err := o.Accept(i, ts)
		require.NoError(t, err)
		assert.Equal(t, Keep, d)
	}
	last, ok := o.Last()
	assert.True(t, ok)
	assert.Equal(t, int64(3), last)
}

func TestDecreaseAbortsUnderEveryPolicy(t *testing.T) {
	for _, p := range []Policy{AllowDuplicates, Strict, DropDuplicates} {
		t.Run(p.String(), func(t *testing.T) {
			o := New(p)
			_, err := o.Accept(0, 10)
			require.NoError(t, err)
			_, err = o.Accept(1, 9)
			var re *market.RowError
			require.ErrorAs(t, err, &re)
			assert.ErrorIs(t, err, market.ErrOutOfOrder)
			assert.Equal(t, 1, re.Row)
			assert.Equal(t, int64(9), re.Timestamp)
		})
	}
}

func TestStrictRejectsTie(t *testing.T) {
	o := New(Strict)
	_, _ = o.Accept(0, 5)
	_, err := o.Accept(1, 5)
	assert.ErrorIs(t, err, market.ErrOutOfOrder)
}

func TestDropDuplicates(t *testing.T) {
	o := New(DropDuplicates)
	_, _ = o.Accept(0, 5)
	d, err := o.Accept(1, 5)
	assert.Equal(t, Drop, d)
	assert.ErrorIs(t, err, market.ErrDuplicateTimestamp)
	d, err = o.Accept(2, 6)
	assert.NoError(t, err)
	assert.Equal(t, Keep, d)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, AllowDuplicates, p)
	p, err = ParsePolicy("drop-duplicates")
	require.NoError(t, err)
	assert.Equal(t, DropDuplicates, p)
	_, err = ParsePolicy("sort")
	assert.Error(t, err)
}
