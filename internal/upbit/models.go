package upbit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kanghyeon/autocoin/internal/entity"
)

// MarketInfo is one entry of the market catalogue.
type MarketInfo struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
}

// AccountInfo is one currency balance of the account.
type AccountInfo struct {
	Currency     string  `json:"currency"`
	Balance      float64 `json:"balance,string"`
	Locked       float64 `json:"locked,string"`
	AvgBuyPrice  float64 `json:"avg_buy_price,string"`
	UnitCurrency string  `json:"unit_currency"`
}

// Available returns the spendable part of the balance.
func (a AccountInfo) Available() float64 {
	return a.Balance - a.Locked
}

// orderRequest is the order placement payload. Market buys carry price only
// (quote amount, ord_type "price"); market sells carry volume only
// (ord_type "market").
type orderRequest struct {
	Market  string `json:"market"`
	Side    string `json:"side"`
	Volume  string `json:"volume,omitempty"`
	Price   string `json:"price,omitempty"`
	OrdType string `json:"ord_type"`
}

// orderResponse mirrors the exchange order resource.
type orderResponse struct {
	UUID           string  `json:"uuid"`
	Side           string  `json:"side"`
	OrdType        string  `json:"ord_type"`
	Price          float64 `json:"price,string"`
	State          string  `json:"state"`
	Market         string  `json:"market"`
	CreatedAt      string  `json:"created_at"`
	Volume         float64 `json:"volume,string"`
	ExecutedVolume float64 `json:"executed_volume,string"`
	ExecutedAmount float64 `json:"executed_amount,string"`
}

func (r orderResponse) toOrder() entity.Order {
	side := entity.SideBid
	if r.Side == "ask" {
		side = entity.SideAsk
	}

	var status entity.OrderStatus
	switch r.State {
	case "wait":
		status = entity.OrderWaiting
	case "done":
		status = entity.OrderExecuted
	case "cancel":
		status = entity.OrderCanceled
	default:
		status = entity.OrderFailed
	}

	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	return entity.Order{
		ID:             r.UUID,
		Market:         r.Market,
		Side:           side,
		Price:          decimal.NewFromFloat(r.Price),
		Volume:         decimal.NewFromFloat(r.Volume),
		Status:         status,
		CreatedAt:      createdAt,
		ExecutedVolume: decimal.NewFromFloat(r.ExecutedVolume),
		ExecutedAmount: decimal.NewFromFloat(r.ExecutedAmount),
	}
}

// apiErrorResponse is the error envelope of the REST API.
type apiErrorResponse struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// subscribeMessage is sent once per websocket connection immediately after
// connect. The wire shape is fixed by the exchange.
type subscribeMessage struct {
	Ticket string   `json:"ticket"`
	Type   string   `json:"type"`
	Codes  []string `json:"codes"`
}

// streamFrame is a trade or ticker frame of the market-data stream. Trade
// frames carry trade_volume per fill; ticker frames reuse the same field for
// the last trade.
type streamFrame struct {
	Type       string  `json:"type"`
	Code       string  `json:"code"`
	Timestamp  int64   `json:"timestamp"`
	TradePrice float64 `json:"trade_price"`
	ChangeRate float64 `json:"change_rate"`
	Volume     float64 `json:"trade_volume"`
}

func (f streamFrame) toTick() entity.Tick {
	return entity.Tick{
		Market:     f.Code,
		Timestamp:  f.Timestamp,
		TradePrice: f.TradePrice,
		ChangeRate: f.ChangeRate,
		Volume:     f.Volume,
	}
}
