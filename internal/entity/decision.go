package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DecisionKind tags the Decision variant. The set is closed: every consumer
// switches exhaustively over the three kinds.
type DecisionKind int

const (
	DecideHold DecisionKind = iota
	DecideBuy
	DecideSell
)

func (k DecisionKind) String() string {
	switch k {
	case DecideBuy:
		return "buy"
	case DecideSell:
		return "sell"
	default:
		return "hold"
	}
}

// Decision is a concrete trading action produced by the decision maker or the
// risk manager. It carries intent only, never state: AmountQuote is set for
// buys (quote currency to spend), Amount for sells (base units to liquidate).
type Decision struct {
	Kind        DecisionKind
	Market      string
	AmountQuote decimal.Decimal // buy only
	Amount      decimal.Decimal // sell only
	Reason      string
}

// BuyDecision creates a market-buy decision spending amountQuote.
func BuyDecision(market string, amountQuote decimal.Decimal, reason string) Decision {
	return Decision{Kind: DecideBuy, Market: market, AmountQuote: amountQuote, Reason: reason}
}

// SellDecision creates a market-sell decision liquidating amount units.
func SellDecision(market string, amount decimal.Decimal, reason string) Decision {
	return Decision{Kind: DecideSell, Market: market, Amount: amount, Reason: reason}
}

// HoldDecision creates a no-op decision.
func HoldDecision(reason string) Decision {
	return Decision{Kind: DecideHold, Reason: reason}
}

// IsTrade reports whether the decision places an order.
func (d Decision) IsTrade() bool {
	return d.Kind == DecideBuy || d.Kind == DecideSell
}

func (d Decision) String() string {
	switch d.Kind {
	case DecideBuy:
		return fmt.Sprintf("buy %s for %s (%s)", d.Market, d.AmountQuote.String(), d.Reason)
	case DecideSell:
		return fmt.Sprintf("sell %s %s (%s)", d.Market, d.Amount.String(), d.Reason)
	default:
		return fmt.Sprintf("hold (%s)", d.Reason)
	}
}
