package feed

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var errNilMap = errors.New("unexpected nil map")

// Decode decodes a single inbound tick frame. The frame is decoded in full
// before anything is returned, so a failure never yields a partial batch.
func Decode(b []byte) (Batch, error) {
	d := msgpack.GetDecoder()
	defer msgpack.PutDecoder(d)

	r := bytes.NewReader(b)
	d.Reset(r)

	batch, err := decodeBatch(d)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if r.Len() != 0 {
		return Batch{}, fmt.Errorf("%w: %d trailing bytes", ErrProtocol, r.Len())
	}
	return batch, nil
}

func decodeMapLen(d *msgpack.Decoder) (int, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNilMap
	}
	return n, nil
}

func decodeBatch(d *msgpack.Decoder) (Batch, error) {
	batch := Batch{Quotes: make(map[string]Quote)}

	n, err := decodeMapLen(d)
	if err != nil {
		return batch, err
	}
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return batch, err
		}
		switch key {
		case "type":
			batch.Type, err = d.DecodeInt64()
		case "currentTs":
			var ms int64
			ms, err = d.DecodeInt64()
			batch.Timestamp = time.UnixMilli(ms).UTC()
		case "feeds":
			err = decodeFeeds(d, batch.Quotes)
		default:
			err = d.Skip()
		}
		if err != nil {
			return batch, fmt.Errorf("%s: %w", key, err)
		}
	}
	return batch, nil
}

func decodeFeeds(d *msgpack.Decoder, quotes map[string]Quote) error {
	n, err := decodeMapLen(d)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return err
		}
		q, err := decodeFeed(d)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		// entries without a known variant fail closed
		if q != nil {
			quotes[key] = q
		}
	}
	return nil
}

func decodeFeed(d *msgpack.Decoder) (Quote, error) {
	n, err := decodeMapLen(d)
	if err != nil {
		return nil, err
	}
	var q Quote
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		switch key {
		case "ltpc":
			q, err = decodeLTPC(d)
		case "ff":
			q, err = decodeFullFeed(d)
		case "firstLevelWithGreeks":
			q, err = decodeFirstLevelWithGreeks(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return q, nil
}

func decodeLTPC(d *msgpack.Decoder) (LTPC, error) {
	ltpc := LTPC{}
	n, err := decodeMapLen(d)
	if err != nil {
		return ltpc, err
	}
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return ltpc, err
		}
		switch key {
		case "ltp":
			ltpc.LastPrice, err = d.DecodeFloat64()
		case "ltt":
			var ms int64
			ms, err = d.DecodeInt64()
			ltpc.LastTradeTime = time.UnixMilli(ms).UTC()
		case "ltq":
			ltpc.LastQuantity, err = d.DecodeInt64()
		case "cp":
			ltpc.ClosePrice, err = d.DecodeFloat64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return ltpc, err
		}
	}
	return ltpc, nil
}

func decodeFullFeed(d *msgpack.Decoder) (FullFeed, error) {
	ff := FullFeed{}
	n, err := decodeMapLen(d)
	if err != nil {
		return ff, err
	}
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return ff, err
		}
		switch key {
		case "ltpc":
			ff.LTPC, err = decodeLTPC(d)
		case "atp":
			ff.AvgTradedPrice, err = d.DecodeFloat64()
		case "vtt":
			ff.Volume, err = d.DecodeInt64()
		case "oi":
			ff.OpenInterest, err = d.DecodeFloat64()
		case "iv":
			ff.ImpliedVolatility, err = d.DecodeFloat64()
		case "tbq":
			ff.TotalBuyQuantity, err = d.DecodeFloat64()
		case "tsq":
			ff.TotalSellQuantity, err = d.DecodeFloat64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return ff, err
		}
	}
	return ff, nil
}

func decodeFirstLevelWithGreeks(d *msgpack.Decoder) (FirstLevelWithGreeks, error) {
	fl := FirstLevelWithGreeks{}
	n, err := decodeMapLen(d)
	if err != nil {
		return fl, err
	}
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return fl, err
		}
		switch key {
		case "ltpc":
			fl.LTPC, err = decodeLTPC(d)
		case "firstDepth":
			fl.Depth, err = decodeDepth(d)
		case "optionGreeks":
			fl.Greeks, err = decodeGreeks(d)
		case "vtt":
			fl.Volume, err = d.DecodeInt64()
		case "oi":
			fl.OpenInterest, err = d.DecodeFloat64()
		case "iv":
			fl.ImpliedVolatility, err = d.DecodeFloat64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return fl, err
		}
	}
	return fl, nil
}

func decodeDepth(d *msgpack.Decoder) (Depth, error) {
	depth := Depth{}
	n, err := decodeMapLen(d)
	if err != nil {
		return depth, err
	}
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return depth, err
		}
		switch key {
		case "bidQ":
			depth.BidQuantity, err = d.DecodeInt64()
		case "bidP":
			depth.BidPrice, err = d.DecodeFloat64()
		case "askQ":
			depth.AskQuantity, err = d.DecodeInt64()
		case "askP":
			depth.AskPrice, err = d.DecodeFloat64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return depth, err
		}
	}
	return depth, nil
}

func decodeGreeks(d *msgpack.Decoder) (Greeks, error) {
	g := Greeks{}
	n, err := decodeMapLen(d)
	if err != nil {
		return g, err
	}
	for i := 0; i < n; i++ {
		key, err := d.DecodeString()
		if err != nil {
			return g, err
		}
		switch key {
		case "delta":
			g.Delta, err = d.DecodeFloat64()
		case "theta":
			g.Theta, err = d.DecodeFloat64()
		case "gamma":
			g.Gamma, err = d.DecodeFloat64()
		case "vega":
			g.Vega, err = d.DecodeFloat64()
		case "rho":
			g.Rho, err = d.DecodeFloat64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return g, err
		}
	}
	return g, nil
}
