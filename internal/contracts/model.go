package contracts

// Model is the capability every forecasting variant implements. The
// predictor treats all models identically through this interface, so
// registering a new model requires no orchestration changes.
type Model interface {
	// Name identifies the model in prediction and performance records.
	Name() string

	// Forecast produces one predicted close per future trading day,
	// index 0 being the first day after the end of history. History is
	// ordered oldest first and is never mutated.
	Forecast(history []PriceRecord, horizon int) ([]float64, error)
}
