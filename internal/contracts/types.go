package contracts

import "time"

// Severity classifies a validation finding or an alert.
type Severity string

const (
	SeverityOK      Severity = "OK"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// rank orders severities for max comparisons
func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of the two
func MaxSeverity(a, b Severity) Severity {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// RunStatus is the terminal (or in-flight) state of a job run.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunPartial RunStatus = "PARTIAL"
	RunFailed  RunStatus = "FAILED"
)

// StepStatus records the outcome of a single pipeline step.
type StepStatus string

const (
	StepOK      StepStatus = "OK"
	StepFailed  StepStatus = "FAILED"
	StepSkipped StepStatus = "SKIPPED"
)

// PriceRecord is one daily OHLCV bar for an instrument.
// Unique per (Instrument, Date); written by the collector, read-only
// everywhere else.
type PriceRecord struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
}

// PredictionRecord is one point forecast for the primary series.
// Unique per (PredictionDate, TargetDate, ModelName). Actual price and
// error fields stay nil until reconciliation attaches the realized close;
// reconciliation happens at most once per record.
type PredictionRecord struct {
	PredictionDate time.Time `json:"prediction_date"`
	TargetDate     time.Time `json:"target_date"`
	ModelName      string    `json:"model_name"`
	HorizonDays    int       `json:"horizon_days"`
	PredictedPrice float64   `json:"predicted_price"`

	ActualPrice     *float64 `json:"actual_price,omitempty"`
	PredictionError *float64 `json:"prediction_error,omitempty"`
	AbsPctError     *float64 `json:"abs_pct_error,omitempty"`
}

// Reconciled reports whether the realized price has been attached
func (p *PredictionRecord) Reconciled() bool {
	return p.ActualPrice != nil
}

// PerformanceRecord holds rolling accuracy metrics for one model at one
// horizon. Derived entirely from reconciled predictions; recomputable.
// SampleCount below the configured minimum marks the row low-confidence.
type PerformanceRecord struct {
	ModelName           string    `json:"model_name"`
	HorizonDays         int       `json:"horizon_days"`
	EvaluationDate      time.Time `json:"evaluation_date"`
	MAE                 float64   `json:"mae"`
	RMSE                float64   `json:"rmse"`
	MAPE                float64   `json:"mape"`
	DirectionalAccuracy float64   `json:"directional_accuracy"`
	SampleCount         int       `json:"sample_count"`
}

// ValidationResult is a single data-quality finding.
type ValidationResult struct {
	RunID     string   `json:"run_id"`
	CheckName string   `json:"check_name"`
	Severity  Severity `json:"severity"`
	Detail    string   `json:"detail"`
	Metric    float64  `json:"metric"`
}

// ValidationReport is the ordered output of one validator pass.
type ValidationReport struct {
	RunID   string             `json:"run_id"`
	AsOf    time.Time          `json:"as_of"`
	Results []ValidationResult `json:"results"`
}

// Severity returns the max severity across all findings
func (r *ValidationReport) Severity() Severity {
	overall := SeverityOK
	for _, res := range r.Results {
		overall = MaxSeverity(overall, res.Severity)
	}
	return overall
}

// RunRecord is the audit trail of one job execution. At most one
// RunRecord per JobName may be RUNNING at a time; the store enforces
// this, making it the single-flight primitive.
type RunRecord struct {
	RunID        string                `json:"run_id"`
	JobName      string                `json:"job_name"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
	Status       RunStatus             `json:"status"`
	StepStatuses map[string]StepStatus `json:"step_statuses"`
}

// Alert is one composed notification occurrence. Deduplicated per
// (Date, Category, ModelName): a condition persisting across runs fires
// once per day, not once per evaluation.
type Alert struct {
	Date          time.Time `json:"date"`
	Category      string    `json:"category"`
	ModelName     string    `json:"model_name"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	FirstObserved time.Time `json:"first_observed"`
}

// Well-known job names used in run records.
const (
	JobPipeline   = "pipeline"
	JobCollection = "collection"
	JobBackup     = "backup"
)

// Pipeline step names, in execution order.
const (
	StepValidate  = "validate"
	StepPredict   = "predict"
	StepReconcile = "reconcile"
	StepEvaluate  = "evaluate"
	StepAlert     = "alert"
)
