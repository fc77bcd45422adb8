package dedup

import (
	"math"

	"btc-wallet-sync/internal/domain"
)

// Weights configures the per-field contribution to the similarity score.
// The formula is a weighted average, so weights need not sum to one.
type Weights struct {
	Symbol    float64
	Timestamp float64
	Quantity  float64
	Type      float64
	Exchange  float64
	Hash      float64

	// TimestampWindow is the proximity window: timestamps further apart
	// than this score zero, closer ones score linearly up to one.
	TimestampWindow float64 // seconds
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Symbol:          0.25,
		Timestamp:       0.20,
		Quantity:        0.20,
		Type:            0.15,
		Exchange:        0.10,
		Hash:            0.10,
		TimestampWindow: 300,
	}
}

func (w Weights) total() float64 {
	return w.Symbol + w.Timestamp + w.Quantity + w.Type + w.Exchange + w.Hash
}

// Similarity scores how likely two transactions describe the same event,
// in [0,1]. Used as a secondary signal when exact fingerprints differ
// slightly (e.g. a provider re-serializes a pending transaction after
// confirmation). Identical transactions score 1.
func (w Weights) Similarity(a, b *domain.Transaction) float64 {
	total := w.total()
	if total == 0 || a == nil || b == nil {
		return 0
	}

	var score float64
	if a.Symbol == b.Symbol {
		score += w.Symbol
	}
	if a.Type == b.Type {
		score += w.Type
	}
	if a.Exchange == b.Exchange {
		score += w.Exchange
	}
	if a.TxHash == b.TxHash {
		score += w.Hash
	}
	score += w.Timestamp * w.timestampProximity(a, b)
	score += w.Quantity * quantityCloseness(a, b)

	return score / total
}

func (w Weights) timestampProximity(a, b *domain.Transaction) float64 {
	window := w.TimestampWindow
	if window <= 0 {
		window = 300
	}
	diff := math.Abs(a.Timestamp.Sub(b.Timestamp).Seconds())
	if diff >= window {
		return 0
	}
	return 1 - diff/window
}

func quantityCloseness(a, b *domain.Transaction) float64 {
	qa, _ := a.Quantity.Float64()
	qb, _ := b.Quantity.Float64()
	if qa == qb {
		return 1
	}
	max := math.Max(math.Abs(qa), math.Abs(qb))
	if max == 0 {
		return 1
	}
	rel := math.Abs(qa-qb) / max
	if rel >= 1 {
		return 0
	}
	return 1 - rel
}
