package alpaca

import "time"

// Wire types for the Alpaca REST API. Monetary fields arrive as JSON
// strings and are parsed to decimals in mapping.go.

type accountResponse struct {
	BuyingPower string `json:"buying_power"`
	Equity      string `json:"equity"`
	Multiplier  string `json:"multiplier"`
}

type positionResponse struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	MarketValue string `json:"market_value"`
}

type assetResponse struct {
	Symbol    string `json:"symbol"`
	Shortable bool   `json:"shortable"`
}

type clockResponse struct {
	IsOpen    bool      `json:"is_open"`
	NextClose time.Time `json:"next_close"`
}

type calendarResponse struct {
	Date  string `json:"date"` // 2006-01-02
	Open  string `json:"open"` // 15:04
	Close string `json:"close"`
}

type barResponse struct {
	Time  time.Time `json:"t"`
	Close float64   `json:"c"`
}

type barsResponse struct {
	Bars          []barResponse `json:"bars"`
	NextPageToken *string       `json:"next_page_token"`
}

type orderResponse struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type orderRequestBody struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	LimitPrice  string `json:"limit_price,omitempty"`
}

// Stream payloads.

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   streamTradeData `json:"data"`
}

type streamTradeData struct {
	Event string          `json:"event"`
	Order streamOrderData `json:"order"`
}

type streamOrderData struct {
	ID string `json:"id"`
}

type streamBarMessage struct {
	Type   string    `json:"T"`
	Symbol string    `json:"S"`
	Close  float64   `json:"c"`
	Time   time.Time `json:"t"`
}
