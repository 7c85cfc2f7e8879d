package anthropic

import "go.uber.org/zap"

// Usage counts the tokens one completion consumed.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// price is USD per million tokens.
type price struct{ in, out float64 }

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {1.00, 5.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-1-20250805":   {15.00, 75.00},
}

const (
	cacheWriteMul = 1.25
	cacheReadMul  = 0.1
)

// Cost estimates the USD cost of u on model. Unknown models cost 0.
func (u Usage) Cost(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	mtok := func(n int64) float64 { return float64(n) / 1e6 }
	return mtok(u.Input)*p.in +
		mtok(u.Output)*p.out +
		mtok(u.CacheWrite)*p.in*cacheWriteMul +
		mtok(u.CacheRead)*p.in*cacheReadMul
}

// Fields renders u as log fields, estimated cost included.
func (u Usage) Fields(model string) []zap.Field {
	return []zap.Field{
		zap.String("model", model),
		zap.Int64("input_tokens", u.Input),
		zap.Int64("output_tokens", u.Output),
		zap.Int64("cache_write_tokens", u.CacheWrite),
		zap.Int64("cache_read_tokens", u.CacheRead),
		zap.Float64("estimated_cost_usd", u.Cost(model)),
	}
}
