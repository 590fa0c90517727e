package model

// Quote is an asking-price snapshot for a stock: the top of the order
// book plus book-wide depth totals. Only the latest snapshot per stock
// is retained.
type Quote struct {
	StockCode      string    `json:"stock_code" validate:"required"`
	QuoteTime      string    `json:"quote_time"`
	AskPrice1      FlexFloat `json:"askp1"`
	BidPrice1      FlexFloat `json:"bidp1"`
	AskVolume1     FlexInt   `json:"askp_rsqn1"`
	BidVolume1     FlexInt   `json:"bidp_rsqn1"`
	TotalAskVolume FlexInt   `json:"total_askp_rsqn"`
	TotalBidVolume FlexInt   `json:"total_bidp_rsqn"`
}

// BestPrices is the tradable top of book derived from a quote.
type BestPrices struct {
	StockCode string  `json:"stock_code"`
	AskPrice  float64 `json:"ask_price"`
	BidPrice  float64 `json:"bid_price"`
	AskVolume int64   `json:"ask_volume"`
	BidVolume int64   `json:"bid_volume"`
	QuoteTime string  `json:"quote_time"`
}

// Best converts the quote to its tradable top of book.
func (q Quote) Best() BestPrices {
	return BestPrices{
		StockCode: q.StockCode,
		AskPrice:  q.AskPrice1.Float64(),
		BidPrice:  q.BidPrice1.Float64(),
		AskVolume: q.AskVolume1.Int64(),
		BidVolume: q.BidVolume1.Int64(),
		QuoteTime: q.QuoteTime,
	}
}
