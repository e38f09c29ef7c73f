package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var testTime = time.Date(2024, 3, 4, 9, 16, 17, 0, time.UTC)

func serializeToMsgpack(t *testing.T, v interface{}) []byte {
	m, err := msgpack.Marshal(v)
	require.NoError(t, err)
	return m
}

func ltpcEntry(price float64) map[string]interface{} {
	return map[string]interface{}{
		"ltpc": map[string]interface{}{
			"ltp": price,
			"ltt": testTime.UnixMilli(),
			"ltq": 25,
			"cp":  99.25,
		},
	}
}

func frame(feeds map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":      1,
		"feeds":     feeds,
		"currentTs": testTime.UnixMilli(),
	}
}

func TestDecodeLTPC(t *testing.T) {
	b := serializeToMsgpack(t, frame(map[string]interface{}{
		"NSE_EQ|FOO": ltpcEntry(101.5),
	}))

	batch, err := Decode(b)
	require.NoError(t, err)

	assert.EqualValues(t, 1, batch.Type)
	assert.True(t, testTime.Equal(batch.Timestamp))
	require.Len(t, batch.Quotes, 1)

	q, ok := batch.Quotes["NSE_EQ|FOO"].(LTPC)
	require.True(t, ok)
	assert.Equal(t, 101.5, q.LastPrice)
	assert.Equal(t, 99.25, q.ClosePrice)
	assert.EqualValues(t, 25, q.LastQuantity)
	assert.True(t, testTime.Equal(q.LastTradeTime))

	ticks := batch.Ticks()
	require.Len(t, ticks, 1)
	assert.Equal(t, Tick{InstrumentKey: "NSE_EQ|FOO", LastTradedPrice: 101.5, Kind: KindLTPC, Quote: q}, ticks[0])
}

func TestDecodeIntegerPrice(t *testing.T) {
	b := serializeToMsgpack(t, frame(map[string]interface{}{
		"NSE_X": map[string]interface{}{"ltpc": map[string]interface{}{"ltp": 10}},
	}))

	batch, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 10.0, batch.Quotes["NSE_X"].LastTraded().LastPrice)
}

func TestDecodeFullFeed(t *testing.T) {
	b := serializeToMsgpack(t, frame(map[string]interface{}{
		"NSE_FO|1": map[string]interface{}{
			"ff": map[string]interface{}{
				"ltpc":  map[string]interface{}{"ltp": 250.5, "cp": 240.0},
				"atp":   248.1,
				"vtt":   120000,
				"oi":    5500.0,
				"iv":    0.21,
				"tbq":   1000.0,
				"tsq":   1500.0,
				"extra": "ignored",
			},
		},
	}))

	batch, err := Decode(b)
	require.NoError(t, err)

	ff, ok := batch.Quotes["NSE_FO|1"].(FullFeed)
	require.True(t, ok)
	assert.Equal(t, KindFullFeed, ff.Kind())
	assert.Equal(t, 250.5, ff.LTPC.LastPrice)
	assert.Equal(t, 240.0, ff.LTPC.ClosePrice)
	assert.Equal(t, 248.1, ff.AvgTradedPrice)
	assert.EqualValues(t, 120000, ff.Volume)
	assert.Equal(t, 5500.0, ff.OpenInterest)
	assert.Equal(t, 0.21, ff.ImpliedVolatility)
	assert.Equal(t, 1000.0, ff.TotalBuyQuantity)
	assert.Equal(t, 1500.0, ff.TotalSellQuantity)
}

func TestDecodeFirstLevelWithGreeks(t *testing.T) {
	b := serializeToMsgpack(t, frame(map[string]interface{}{
		"NSE_FO|2": map[string]interface{}{
			"firstLevelWithGreeks": map[string]interface{}{
				"ltpc":         map[string]interface{}{"ltp": 12.5},
				"firstDepth":   map[string]interface{}{"bidQ": 50, "bidP": 12.4, "askQ": 75, "askP": 12.6},
				"optionGreeks": map[string]interface{}{"delta": 0.5, "theta": -1.2, "gamma": 0.01, "vega": 3.3, "rho": 0.2},
				"vtt":          900,
				"oi":           10.0,
				"iv":           0.3,
			},
		},
	}))

	batch, err := Decode(b)
	require.NoError(t, err)

	fl, ok := batch.Quotes["NSE_FO|2"].(FirstLevelWithGreeks)
	require.True(t, ok)
	assert.Equal(t, KindFirstLevelWithGreeks, fl.Kind())
	assert.Equal(t, 12.5, fl.LastTraded().LastPrice)
	assert.Equal(t, Depth{BidQuantity: 50, BidPrice: 12.4, AskQuantity: 75, AskPrice: 12.6}, fl.Depth)
	assert.Equal(t, Greeks{Delta: 0.5, Theta: -1.2, Gamma: 0.01, Vega: 3.3, Rho: 0.2}, fl.Greeks)
	assert.EqualValues(t, 900, fl.Volume)
	assert.Equal(t, 10.0, fl.OpenInterest)
	assert.Equal(t, 0.3, fl.ImpliedVolatility)
}

func TestDecodeUnknownVariantFailsClosed(t *testing.T) {
	b := serializeToMsgpack(t, frame(map[string]interface{}{
		"K1": map[string]interface{}{"marketLevelV9": map[string]interface{}{"ltp": 5.0}},
		"K2": ltpcEntry(7),
	}))

	batch, err := Decode(b)
	require.NoError(t, err)
	assert.Len(t, batch.Quotes, 1)
	assert.Contains(t, batch.Quotes, "K2")
}

func TestDecodeSkipsUnknownTopLevelFields(t *testing.T) {
	f := frame(map[string]interface{}{"K": ltpcEntry(1)})
	f["marketInfo"] = map[string]interface{}{"segmentStatus": map[string]interface{}{"NSE_EQ": "NORMAL_OPEN"}}

	batch, err := Decode(serializeToMsgpack(t, f))
	require.NoError(t, err)
	assert.Len(t, batch.Quotes, 1)
}

func TestDecodeLastVariantWins(t *testing.T) {
	// insertion order of a Go map is not stable, so build the entry by hand
	entry := []byte{0x82}
	entry = append(entry, serializeToMsgpack(t, "ff")...)
	entry = append(entry, serializeToMsgpack(t, map[string]interface{}{"ltpc": map[string]interface{}{"ltp": 1.0}})...)
	entry = append(entry, serializeToMsgpack(t, "ltpc")...)
	entry = append(entry, serializeToMsgpack(t, map[string]interface{}{"ltp": 2.0})...)

	b := []byte{0x81}
	b = append(b, serializeToMsgpack(t, "feeds")...)
	b = append(b, 0x81)
	b = append(b, serializeToMsgpack(t, "K")...)
	b = append(b, entry...)

	batch, err := Decode(b)
	require.NoError(t, err)
	q, ok := batch.Quotes["K"].(LTPC)
	require.True(t, ok)
	assert.Equal(t, 2.0, q.LastPrice)
}

func TestDecodeFailures(t *testing.T) {
	valid := serializeToMsgpack(t, frame(map[string]interface{}{"NSE_EQ|FOO": ltpcEntry(101.5)}))

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:len(valid)-3]},
		{name: "half", data: valid[:len(valid)/2]},
		{name: "reserved byte", data: []byte{0xc1}},
		{name: "not a map", data: serializeToMsgpack(t, []int{1, 2, 3})},
		{name: "nil frame", data: serializeToMsgpack(t, nil)},
		{name: "price is a string", data: serializeToMsgpack(t, frame(map[string]interface{}{
			"K": map[string]interface{}{"ltpc": map[string]interface{}{"ltp": "ten"}},
		}))},
		{name: "entry is not a map", data: serializeToMsgpack(t, frame(map[string]interface{}{"K": 42}))},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0xc1, 0xff, 0x00)},
		{name: "two frames", data: append(append([]byte{}, valid...), valid...)},
		{name: "nil feeds", data: serializeToMsgpack(t, map[string]interface{}{"type": 1, "feeds": nil})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrProtocol)
			assert.Empty(t, batch.Quotes)
		})
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	valid := serializeToMsgpack(t, frame(map[string]interface{}{"K": ltpcEntry(3)}))
	corrupted := valid[:len(valid)-1]

	_, err1 := Decode(corrupted)
	_, err2 := Decode(corrupted)
	require.Error(t, err1)
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestQuoteKindString(t *testing.T) {
	assert.Equal(t, "ltpc", KindLTPC.String())
	assert.Equal(t, "full_feed", KindFullFeed.String())
	assert.Equal(t, "first_level_with_greeks", KindFirstLevelWithGreeks.String())
	assert.Equal(t, "unknown", QuoteKind(0).String())
}
