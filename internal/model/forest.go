package model

import (
	"math/rand"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// RandomForest bags depth-limited regression trees over lagged-return
// features. Trees are grown from a fixed seed so forecasts are
// reproducible run to run.
type RandomForest struct {
	trees    int
	lags     int
	maxDepth int
}

// NewRandomForest creates the model
func NewRandomForest(trees, lags, maxDepth int) *RandomForest {
	return &RandomForest{trees: trees, lags: lags, maxDepth: maxDepth}
}

func (m *RandomForest) Name() string { return NameRandomForest }

// Forecast returns one predicted close per horizon step
func (m *RandomForest) Forecast(history []contracts.PriceRecord, horizon int) ([]float64, error) {
	prices := closes(history)
	rets := dailyReturns(prices)
	if len(rets) < m.lags*5 {
		return nil, ErrInsufficientHistory
	}

	features, targets := lagSamples(rets, m.lags)
	rng := rand.New(rand.NewSource(1))

	forest := make([]*treeNode, m.trees)
	for i := range forest {
		fs, ts := bootstrap(features, targets, rng)
		forest[i] = growTree(fs, ts, m.maxDepth, rng)
	}

	window := append([]float64(nil), rets[len(rets)-m.lags:]...)
	price := prices[len(prices)-1]
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		sum := 0.0
		for _, t := range forest {
			sum += t.predict(window)
		}
		next := sum / float64(len(forest))
		window = append(window[1:], next)
		price *= 1 + next
		out[h] = price
	}
	return out, nil
}

// lagSamples builds (lag window, next return) pairs. The window is
// ordered most recent last, matching how the forecast loop feeds it.
func lagSamples(rets []float64, lags int) ([][]float64, []float64) {
	n := len(rets) - lags
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		features[i] = rets[i : i+lags]
		targets[i] = rets[i+lags]
	}
	return features, targets
}

func bootstrap(features [][]float64, targets []float64, rng *rand.Rand) ([][]float64, []float64) {
	n := len(targets)
	fs := make([][]float64, n)
	ts := make([]float64, n)
	for i := 0; i < n; i++ {
		j := rng.Intn(n)
		fs[i] = features[j]
		ts[i] = targets[j]
	}
	return fs, ts
}

type treeNode struct {
	feature   int
	threshold float64
	value     float64
	left      *treeNode
	right     *treeNode
}

func (t *treeNode) predict(window []float64) float64 {
	if t.left == nil {
		return t.value
	}
	if window[t.feature] <= t.threshold {
		return t.left.predict(window)
	}
	return t.right.predict(window)
}

// growTree splits greedily on variance reduction over a random feature
// subset, CART style.
func growTree(features [][]float64, targets []float64, depth int, rng *rand.Rand) *treeNode {
	if depth == 0 || len(targets) < 8 {
		return &treeNode{value: mean(targets)}
	}

	nFeatures := len(features[0])
	bestFeature, bestThreshold, bestScore := -1, 0.0, variance(targets)*float64(len(targets))

	// Random sqrt-sized feature subset per node.
	tried := rng.Perm(nFeatures)[:maxInt(1, nFeatures/2)]
	for _, f := range tried {
		for _, candidate := range thresholdCandidates(features, f, rng) {
			var leftT, rightT []float64
			for i, row := range features {
				if row[f] <= candidate {
					leftT = append(leftT, targets[i])
				} else {
					rightT = append(rightT, targets[i])
				}
			}
			if len(leftT) < 3 || len(rightT) < 3 {
				continue
			}
			score := variance(leftT)*float64(len(leftT)) + variance(rightT)*float64(len(rightT))
			if score < bestScore {
				bestFeature, bestThreshold, bestScore = f, candidate, score
			}
		}
	}

	if bestFeature < 0 {
		return &treeNode{value: mean(targets)}
	}

	var leftF, rightF [][]float64
	var leftT, rightT []float64
	for i, row := range features {
		if row[bestFeature] <= bestThreshold {
			leftF = append(leftF, row)
			leftT = append(leftT, targets[i])
		} else {
			rightF = append(rightF, row)
			rightT = append(rightT, targets[i])
		}
	}

	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      growTree(leftF, leftT, depth-1, rng),
		right:     growTree(rightF, rightT, depth-1, rng),
	}
}

// thresholdCandidates samples a few feature values to try as split points
func thresholdCandidates(features [][]float64, f int, rng *rand.Rand) []float64 {
	n := len(features)
	count := minInt(8, n)
	out := make([]float64, count)
	for i := 0; i < count; i++ {
		out[i] = features[rng.Intn(n)][f]
	}
	return out
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return sum / float64(len(xs))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
