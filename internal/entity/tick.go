package entity

import "time"

// Tick is a single real-time price/volume observation for a market,
// decoded from one trade or ticker frame of the exchange stream.
type Tick struct {
	Market     string
	Timestamp  int64 // milliseconds since epoch
	TradePrice float64
	ChangeRate float64
	Volume     float64
}

// Time converts the millisecond timestamp to time.Time.
func (t Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}
