// Package model holds the forecasting models behind the ensemble. Every
// model is a pure function of the price history it is handed: no stored
// state, no I/O, deterministic output for the same input.
package model

import (
	"errors"
	"fmt"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// ErrInsufficientHistory is returned by a model when the history slice
// is shorter than the model's minimum. The predictor treats this as a
// per-model failure, not a pipeline failure.
var ErrInsufficientHistory = errors.New("model: insufficient history")

// Model name constants. These are persisted in forecast.predictions, so
// they are part of the storage contract and must stay stable.
const (
	NameARIMA         = "arima"
	NameRandomForest  = "random_forest"
	NameGradientBoost = "gradient_boost"
	NameLSTM          = "lstm"
	NameProphet       = "prophet"

	// NameEnsemble is the synthetic model row the predictor writes for
	// the cross-model mean.
	NameEnsemble = "ensemble"
)

// Registry is an ordered collection of models. Order is stable so
// prediction runs and logs are reproducible.
type Registry struct {
	models []contracts.Model
}

// NewRegistry returns the default model set
func NewRegistry() *Registry {
	return &Registry{
		models: []contracts.Model{
			NewARIMA(5),
			NewRandomForest(40, 6, 4),
			NewGradientBoost(120, 0.08, 6),
			NewLSTM(10, 8, 200),
			NewProphet(),
		},
	}
}

// NewRegistryWith builds a registry from an explicit model list, used
// for single-model runs and tests.
func NewRegistryWith(models ...contracts.Model) *Registry {
	return &Registry{models: models}
}

// Models returns the models in registration order
func (r *Registry) Models() []contracts.Model {
	return r.models
}

// Names returns model names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.models))
	for i, m := range r.models {
		names[i] = m.Name()
	}
	return names
}

// Get returns a model by name
func (r *Registry) Get(name string) (contracts.Model, error) {
	for _, m := range r.models {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("model: unknown model %q", name)
}

func closes(history []contracts.PriceRecord) []float64 {
	out := make([]float64, len(history))
	for i, h := range history {
		out[i] = h.Close
	}
	return out
}

// returns computes day-over-day fractional returns, length len(prices)-1
func dailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = prices[i]/prices[i-1] - 1
		}
	}
	return out
}
