package feed

import (
	"sort"
	"time"
)

// QuoteKind tags the variant carried by a feed entry.
type QuoteKind int

const (
	KindLTPC QuoteKind = iota + 1
	KindFullFeed
	KindFirstLevelWithGreeks
)

func (k QuoteKind) String() string {
	switch k {
	case KindLTPC:
		return "ltpc"
	case KindFullFeed:
		return "full_feed"
	case KindFirstLevelWithGreeks:
		return "first_level_with_greeks"
	default:
		return "unknown"
	}
}

// Quote is one of LTPC, FullFeed or FirstLevelWithGreeks.
type Quote interface {
	Kind() QuoteKind
	// LastTraded returns the last-traded price block every variant carries.
	LastTraded() LTPC

	isQuote()
}

// LTPC is the minimal quote: last traded price and previous close.
type LTPC struct {
	LastPrice     float64
	LastTradeTime time.Time
	LastQuantity  int64
	ClosePrice    float64
}

func (LTPC) Kind() QuoteKind    { return KindLTPC }
func (q LTPC) LastTraded() LTPC { return q }
func (LTPC) isQuote()           {}

// FullFeed is the full market quote.
type FullFeed struct {
	LTPC              LTPC
	AvgTradedPrice    float64
	Volume            int64
	OpenInterest      float64
	ImpliedVolatility float64
	TotalBuyQuantity  float64
	TotalSellQuantity float64
}

func (FullFeed) Kind() QuoteKind    { return KindFullFeed }
func (q FullFeed) LastTraded() LTPC { return q.LTPC }
func (FullFeed) isQuote()           {}

// Depth is the best bid and ask.
type Depth struct {
	BidQuantity int64
	BidPrice    float64
	AskQuantity int64
	AskPrice    float64
}

// Greeks are the option sensitivities.
type Greeks struct {
	Delta float64
	Theta float64
	Gamma float64
	Vega  float64
	Rho   float64
}

// FirstLevelWithGreeks is the top of book quote for options.
type FirstLevelWithGreeks struct {
	LTPC              LTPC
	Depth             Depth
	Greeks            Greeks
	Volume            int64
	OpenInterest      float64
	ImpliedVolatility float64
}

func (FirstLevelWithGreeks) Kind() QuoteKind    { return KindFirstLevelWithGreeks }
func (q FirstLevelWithGreeks) LastTraded() LTPC { return q.LTPC }
func (FirstLevelWithGreeks) isQuote()           {}

// Batch is a single decoded frame, keyed by instrument key.
type Batch struct {
	Type      int64
	Timestamp time.Time
	Quotes    map[string]Quote
}

// Tick is the evaluation view of one batch entry.
type Tick struct {
	InstrumentKey   string
	LastTradedPrice float64
	Kind            QuoteKind
	Quote           Quote
}

// Ticks returns one tick per entry, ordered by instrument key.
func (b Batch) Ticks() []Tick {
	keys := make([]string, 0, len(b.Quotes))
	for k := range b.Quotes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ticks := make([]Tick, 0, len(keys))
	for _, k := range keys {
		q := b.Quotes[k]
		ticks = append(ticks, Tick{
			InstrumentKey:   k,
			LastTradedPrice: q.LastTraded().LastPrice,
			Kind:            q.Kind(),
			Quote:           q,
		})
	}
	return ticks
}
