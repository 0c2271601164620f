package storage

import "math"

// The database columns are plain double precision and must stay
// finite. In memory, NaN marks an unconfigured engineering value, so
// the mapping below swaps NaN for a finite sentinel on the way in and
// restores it on the way out. The sentinel sits far outside any
// plausible engineering range.
const nonFiniteSentinel = -1.0e12

func toStored(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nonFiniteSentinel
	}
	return v
}

func fromStored(v float64) float64 {
	if v == nonFiniteSentinel {
		return math.NaN()
	}
	return v
}

// encodeRecord maps every NaN-capable field explicitly. The field list
// is deliberately spelled out; a new float column has to be added here
// by hand.
func encodeRecord(r *ChannelRecord) {
	r.RangeLow = toStored(r.RangeLow)
	r.RangeHigh = toStored(r.RangeHigh)
	r.SetpointLL = toStored(r.SetpointLL)
	r.SetpointL = toStored(r.SetpointL)
	r.SetpointH = toStored(r.SetpointH)
	r.SetpointHH = toStored(r.SetpointHH)
	r.Reading0 = toStored(r.Reading0)
	r.Reading25 = toStored(r.Reading25)
	r.Reading50 = toStored(r.Reading50)
	r.Reading75 = toStored(r.Reading75)
	r.Reading100 = toStored(r.Reading100)
}

func decodeRecord(r *ChannelRecord) {
	r.RangeLow = fromStored(r.RangeLow)
	r.RangeHigh = fromStored(r.RangeHigh)
	r.SetpointLL = fromStored(r.SetpointLL)
	r.SetpointL = fromStored(r.SetpointL)
	r.SetpointH = fromStored(r.SetpointH)
	r.SetpointHH = fromStored(r.SetpointHH)
	r.Reading0 = fromStored(r.Reading0)
	r.Reading25 = fromStored(r.Reading25)
	r.Reading50 = fromStored(r.Reading50)
	r.Reading75 = fromStored(r.Reading75)
	r.Reading100 = fromStored(r.Reading100)
}
