package entity

import "time"

// SignalKind classifies a trading signal.
type SignalKind int

const (
	SignalHold SignalKind = iota
	SignalBuy
	SignalStrongBuy
	SignalSell
	SignalStrongSell
)

func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "buy"
	case SignalStrongBuy:
		return "strong_buy"
	case SignalSell:
		return "sell"
	case SignalStrongSell:
		return "strong_sell"
	default:
		return "hold"
	}
}

// Signal is a directional trading suggestion derived from ticks.
type Signal struct {
	Market     string
	Kind       SignalKind
	Confidence float64 // 0.0 to 1.0
	Reason     string
	Timestamp  time.Time
}

// NewBuySignal creates a buy signal for the given market.
func NewBuySignal(market string, confidence float64, reason string) Signal {
	return Signal{
		Market:     market,
		Kind:       SignalBuy,
		Confidence: confidence,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
}

// NewSellSignal creates a sell signal for the given market.
func NewSellSignal(market string, confidence float64, reason string) Signal {
	return Signal{
		Market:     market,
		Kind:       SignalSell,
		Confidence: confidence,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
}
