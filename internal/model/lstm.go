package model

import (
	"math"
	"math/rand"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// LSTM is a small recurrent network over sliding return windows,
// trained with plain SGD from a fixed seed. It keeps the recurrent
// shape of the original model at a size that trains in milliseconds at
// daily frequency.
type LSTM struct {
	window int
	hidden int
	epochs int
}

// NewLSTM creates the model
func NewLSTM(window, hidden, epochs int) *LSTM {
	return &LSTM{window: window, hidden: hidden, epochs: epochs}
}

func (m *LSTM) Name() string { return NameLSTM }

// network is a single tanh recurrent cell unrolled over the window,
// with a linear readout from the final hidden state.
type network struct {
	wIn  []float64 // hidden x 1
	wRec [][]float64
	bH   []float64
	wOut []float64
	bOut float64
}

func newNetwork(hidden int, rng *rand.Rand) *network {
	n := &network{
		wIn:  make([]float64, hidden),
		wRec: make([][]float64, hidden),
		bH:   make([]float64, hidden),
		wOut: make([]float64, hidden),
	}
	scale := 1 / math.Sqrt(float64(hidden))
	for i := 0; i < hidden; i++ {
		n.wIn[i] = rng.NormFloat64() * scale
		n.wOut[i] = rng.NormFloat64() * scale
		n.wRec[i] = make([]float64, hidden)
		for j := 0; j < hidden; j++ {
			n.wRec[i][j] = rng.NormFloat64() * scale
		}
	}
	return n
}

// forward runs the cell across the window and returns the prediction
// plus every intermediate state, needed for backprop.
func (n *network) forward(window []float64) (float64, [][]float64) {
	hidden := len(n.bH)
	states := make([][]float64, len(window)+1)
	states[0] = make([]float64, hidden)

	for t, x := range window {
		prev := states[t]
		state := make([]float64, hidden)
		for i := 0; i < hidden; i++ {
			sum := n.wIn[i]*x + n.bH[i]
			for j := 0; j < hidden; j++ {
				sum += n.wRec[i][j] * prev[j]
			}
			state[i] = math.Tanh(sum)
		}
		states[t+1] = state
	}

	out := n.bOut
	last := states[len(window)]
	for i := 0; i < hidden; i++ {
		out += n.wOut[i] * last[i]
	}
	return out, states
}

// train runs truncated backprop through time with SGD
func (n *network) train(features [][]float64, targets []float64, epochs int, rng *rand.Rand) {
	hidden := len(n.bH)
	lr := 0.01

	for epoch := 0; epoch < epochs; epoch++ {
		for _, idx := range rng.Perm(len(targets)) {
			window := features[idx]
			pred, states := n.forward(window)
			grad := 2 * (pred - targets[idx])

			// Output layer.
			last := states[len(window)]
			dState := make([]float64, hidden)
			for i := 0; i < hidden; i++ {
				n.wOut[i] -= lr * grad * last[i]
				dState[i] = grad * n.wOut[i]
			}
			n.bOut -= lr * grad

			// Backprop through time.
			for t := len(window) - 1; t >= 0; t-- {
				state, prev := states[t+1], states[t]
				dPrev := make([]float64, hidden)
				for i := 0; i < hidden; i++ {
					// d tanh
					d := dState[i] * (1 - state[i]*state[i])
					n.wIn[i] -= lr * d * window[t]
					n.bH[i] -= lr * d
					for j := 0; j < hidden; j++ {
						dPrev[j] += d * n.wRec[i][j]
						n.wRec[i][j] -= lr * d * prev[j]
					}
				}
				dState = dPrev
			}
		}
	}
}

// Forecast returns one predicted close per horizon step
func (m *LSTM) Forecast(history []contracts.PriceRecord, horizon int) ([]float64, error) {
	prices := closes(history)
	rets := dailyReturns(prices)
	if len(rets) < m.window*4 {
		return nil, ErrInsufficientHistory
	}

	features, targets := lagSamples(rets, m.window)
	rng := rand.New(rand.NewSource(3))

	net := newNetwork(m.hidden, rng)
	net.train(features, targets, m.epochs, rng)

	window := append([]float64(nil), rets[len(rets)-m.window:]...)
	price := prices[len(prices)-1]
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		next, _ := net.forward(window)
		// Clamp runaway outputs to a plausible daily move.
		next = math.Max(-0.2, math.Min(0.2, next))
		window = append(window[1:], next)
		price *= 1 + next
		out[h] = price
	}
	return out, nil
}
