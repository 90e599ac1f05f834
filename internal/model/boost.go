package model

import (
	"math/rand"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// GradientBoost fits an additive ensemble of regression stumps to
// lagged-return features, shrinking each stage by the learning rate.
type GradientBoost struct {
	rounds int
	rate   float64
	lags   int
}

// NewGradientBoost creates the model
func NewGradientBoost(rounds int, rate float64, lags int) *GradientBoost {
	return &GradientBoost{rounds: rounds, rate: rate, lags: lags}
}

func (m *GradientBoost) Name() string { return NameGradientBoost }

type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
}

func (s stump) predict(window []float64) float64 {
	if window[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

// Forecast returns one predicted close per horizon step
func (m *GradientBoost) Forecast(history []contracts.PriceRecord, horizon int) ([]float64, error) {
	prices := closes(history)
	rets := dailyReturns(prices)
	if len(rets) < m.lags*5 {
		return nil, ErrInsufficientHistory
	}

	features, targets := lagSamples(rets, m.lags)
	rng := rand.New(rand.NewSource(2))

	base := mean(targets)
	residuals := make([]float64, len(targets))
	for i := range targets {
		residuals[i] = targets[i] - base
	}

	stumps := make([]stump, 0, m.rounds)
	for round := 0; round < m.rounds; round++ {
		st, ok := fitStump(features, residuals, rng)
		if !ok {
			break
		}
		stumps = append(stumps, st)
		for i, row := range features {
			residuals[i] -= m.rate * st.predict(row)
		}
	}

	window := append([]float64(nil), rets[len(rets)-m.lags:]...)
	price := prices[len(prices)-1]
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		next := base
		for _, st := range stumps {
			next += m.rate * st.predict(window)
		}
		window = append(window[1:], next)
		price *= 1 + next
		out[h] = price
	}
	return out, nil
}

// fitStump finds the single split minimizing squared error on the
// current residuals.
func fitStump(features [][]float64, residuals []float64, rng *rand.Rand) (stump, bool) {
	best := stump{feature: -1}
	bestScore := variance(residuals) * float64(len(residuals))

	for f := 0; f < len(features[0]); f++ {
		for _, candidate := range thresholdCandidates(features, f, rng) {
			var leftR, rightR []float64
			for i, row := range features {
				if row[f] <= candidate {
					leftR = append(leftR, residuals[i])
				} else {
					rightR = append(rightR, residuals[i])
				}
			}
			if len(leftR) < 3 || len(rightR) < 3 {
				continue
			}
			score := variance(leftR)*float64(len(leftR)) + variance(rightR)*float64(len(rightR))
			if score < bestScore {
				best = stump{feature: f, threshold: candidate, left: mean(leftR), right: mean(rightR)}
				bestScore = score
			}
		}
	}

	return best, best.feature >= 0
}
