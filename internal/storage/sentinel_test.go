package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelRoundTrip(t *testing.T) {
	record := &ChannelRecord{
		RangeLow:   4,
		RangeHigh:  20,
		SetpointLL: math.NaN(),
		SetpointL:  math.NaN(),
		SetpointH:  18.5,
		SetpointHH: math.Inf(1),
		Reading0:   4.01,
		Reading50:  math.NaN(),
	}

	encodeRecord(record)

	// Nothing non-finite survives encoding.
	for _, v := range []float64{
		record.RangeLow, record.RangeHigh,
		record.SetpointLL, record.SetpointL, record.SetpointH, record.SetpointHH,
		record.Reading0, record.Reading25, record.Reading50, record.Reading75, record.Reading100,
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	assert.Equal(t, nonFiniteSentinel, record.SetpointLL)

	decodeRecord(record)

	// Finite values round-trip untouched, sentinels come back as NaN.
	assert.Equal(t, 4.0, record.RangeLow)
	assert.Equal(t, 18.5, record.SetpointH)
	assert.Equal(t, 4.01, record.Reading0)
	assert.True(t, math.IsNaN(record.SetpointLL))
	assert.True(t, math.IsNaN(record.SetpointL))
	assert.True(t, math.IsNaN(record.SetpointHH))
	assert.True(t, math.IsNaN(record.Reading50))
	assert.Equal(t, 0.0, record.Reading25)
}
