// Package pipeline sequences the daily forecast run: validate, predict,
// reconcile, evaluate, alert. One run per day, single-flight per job,
// every outcome recorded in ops.runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/predict"
)

// Step interfaces, satisfied by the concrete components. The
// orchestrator only needs each step's entry point.
type (
	Validator interface {
		Validate(ctx context.Context, runID string, asOf time.Time) (*contracts.ValidationReport, error)
	}
	Predictor interface {
		Predict(ctx context.Context, asOf time.Time) (*predict.Result, error)
	}
	Reconciler interface {
		Reconcile(ctx context.Context, asOf time.Time) (*predict.ReconcileStats, error)
	}
	Evaluator interface {
		Evaluate(ctx context.Context, asOf time.Time) ([]contracts.PerformanceRecord, error)
	}
	AlertEngine interface {
		Run(ctx context.Context, asOf time.Time, report *contracts.ValidationReport,
			performance []contracts.PerformanceRecord) ([]contracts.Alert, error)
		RaisePipelineFailure(ctx context.Context, asOf time.Time, cause error) error
	}
)

// EventSink receives pipeline events for live consumers. Implemented by
// the websocket hub; NopSink is used when no consumer is wired.
type EventSink interface {
	RunFinished(run contracts.RunRecord)
	AlertsRaised(alerts []contracts.Alert)
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) RunFinished(contracts.RunRecord) {}
func (NopSink) AlertsRaised([]contracts.Alert)  {}

// Config holds orchestrator parameters
type Config struct {
	RunTimeout time.Duration

	// MaxRetries bounds RunWithRetry attempts beyond the first.
	MaxRetries        int
	RetryInitialDelay time.Duration
}

// Orchestrator coordinates one pipeline run end to end
type Orchestrator struct {
	runs        contracts.RunRepository
	validations contracts.ValidationRepository
	validator   Validator
	predictor   Predictor
	reconciler  Reconciler
	evaluator   Evaluator
	alerts      AlertEngine
	sink        EventSink
	config      Config
	log         zerolog.Logger
}

// New creates an orchestrator
func New(runs contracts.RunRepository, validations contracts.ValidationRepository,
	validator Validator, predictor Predictor, reconciler Reconciler, evaluator Evaluator,
	alerts AlertEngine, sink EventSink, config Config, log zerolog.Logger) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Orchestrator{
		runs:        runs,
		validations: validations,
		validator:   validator,
		predictor:   predictor,
		reconciler:  reconciler,
		evaluator:   evaluator,
		alerts:      alerts,
		sink:        sink,
		config:      config,
		log:         log.With().Str("component", "pipeline.orchestrator").Logger(),
	}
}

// NewRunID builds a run identifier from the job name and start time
func NewRunID(jobName string, at time.Time) string {
	return fmt.Sprintf("%s-%s", jobName, at.UTC().Format("20060102T150405.000"))
}

// Run executes one pipeline pass for asOf. Step failures are recorded
// in the run record, not returned: the error return is reserved for
// runs that could not execute at all (single-flight rejection, storage
// failure).
//
// Step dependencies: predict needs a completed validation (findings,
// even ERROR, do not block it — they flow into the alert step);
// evaluate needs a completed reconcile. Reconcile and alert always
// run, so matured predictions and operator alerts never wait on an
// upstream failure.
func (o *Orchestrator) Run(ctx context.Context, asOf time.Time) (*contracts.RunRecord, error) {
	asOf = calendar.Midnight(asOf)
	started := time.Now()

	rec := &contracts.RunRecord{
		RunID:        NewRunID(contracts.JobPipeline, started),
		JobName:      contracts.JobPipeline,
		StartedAt:    started,
		StepStatuses: make(map[string]contracts.StepStatus),
	}
	if err := o.runs.TryStart(ctx, rec); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.config.RunTimeout)
	defer cancel()

	o.log.Info().Str("run_id", rec.RunID).Str("as_of", asOf.Format("2006-01-02")).Msg("pipeline run started")

	report := o.stepValidate(runCtx, rec, asOf)
	o.stepPredict(runCtx, rec, asOf, report)
	reconciled := o.stepReconcile(runCtx, rec, asOf)
	performance := o.stepEvaluate(runCtx, rec, asOf, reconciled)
	o.stepAlert(runCtx, rec, asOf, report, performance)

	rec.Status = rollup(rec.StepStatuses)
	finished := time.Now()
	rec.FinishedAt = &finished

	// Finish with a fresh context so a run timeout cannot strand the
	// record in RUNNING.
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer finishCancel()
	if err := o.runs.Finish(finishCtx, rec); err != nil {
		return nil, fmt.Errorf("finish run %s: %w", rec.RunID, err)
	}

	o.log.Info().
		Str("run_id", rec.RunID).
		Str("status", string(rec.Status)).
		Dur("elapsed", finished.Sub(started)).
		Msg("pipeline run finished")

	o.sink.RunFinished(*rec)
	return rec, nil
}

func (o *Orchestrator) stepValidate(ctx context.Context, rec *contracts.RunRecord,
	asOf time.Time) *contracts.ValidationReport {
	report, err := o.validator.Validate(ctx, rec.RunID, asOf)
	if err != nil {
		o.failStep(rec, contracts.StepValidate, err)
		return nil
	}
	if err := o.validations.SaveReport(ctx, report); err != nil {
		o.failStep(rec, contracts.StepValidate, err)
		return report
	}
	rec.StepStatuses[contracts.StepValidate] = contracts.StepOK
	return report
}

func (o *Orchestrator) stepPredict(ctx context.Context, rec *contracts.RunRecord,
	asOf time.Time, report *contracts.ValidationReport) {
	if rec.StepStatuses[contracts.StepValidate] != contracts.StepOK {
		o.skipStep(rec, contracts.StepPredict, "validation did not complete")
		return
	}
	if sev := report.Severity(); sev != contracts.SeverityOK {
		o.log.Warn().Str("run_id", rec.RunID).Str("severity", string(sev)).
			Msg("predicting over flagged data")
	}

	result, err := o.predictor.Predict(ctx, asOf)
	if err != nil {
		o.failStep(rec, contracts.StepPredict, err)
		return
	}
	if len(result.Failed) > 0 {
		o.log.Warn().Int("failed_models", len(result.Failed)).Msg("some models failed")
	}
	rec.StepStatuses[contracts.StepPredict] = contracts.StepOK
}

func (o *Orchestrator) stepReconcile(ctx context.Context, rec *contracts.RunRecord,
	asOf time.Time) bool {
	if _, err := o.reconciler.Reconcile(ctx, asOf); err != nil {
		o.failStep(rec, contracts.StepReconcile, err)
		return false
	}
	rec.StepStatuses[contracts.StepReconcile] = contracts.StepOK
	return true
}

func (o *Orchestrator) stepEvaluate(ctx context.Context, rec *contracts.RunRecord,
	asOf time.Time, reconciled bool) []contracts.PerformanceRecord {
	if !reconciled {
		o.skipStep(rec, contracts.StepEvaluate, "reconcile did not complete")
		return nil
	}
	rows, err := o.evaluator.Evaluate(ctx, asOf)
	if err != nil {
		o.failStep(rec, contracts.StepEvaluate, err)
		return nil
	}
	rec.StepStatuses[contracts.StepEvaluate] = contracts.StepOK
	return rows
}

func (o *Orchestrator) stepAlert(ctx context.Context, rec *contracts.RunRecord, asOf time.Time,
	report *contracts.ValidationReport, performance []contracts.PerformanceRecord) {
	raised, err := o.alerts.Run(ctx, asOf, report, performance)
	if err != nil {
		o.failStep(rec, contracts.StepAlert, err)
		return
	}
	rec.StepStatuses[contracts.StepAlert] = contracts.StepOK
	if len(raised) > 0 {
		o.sink.AlertsRaised(raised)
	}
}

func (o *Orchestrator) failStep(rec *contracts.RunRecord, step string, err error) {
	o.log.Error().Str("run_id", rec.RunID).Str("step", step).Err(err).Msg("step failed")
	rec.StepStatuses[step] = contracts.StepFailed
}

func (o *Orchestrator) skipStep(rec *contracts.RunRecord, step, reason string) {
	o.log.Warn().Str("run_id", rec.RunID).Str("step", step).Str("reason", reason).Msg("step skipped")
	rec.StepStatuses[step] = contracts.StepSkipped
}

// rollup derives the run status from step outcomes. A run without a
// usable forecast attempt is FAILED; completed runs with degraded steps
// are PARTIAL.
func rollup(steps map[string]contracts.StepStatus) contracts.RunStatus {
	if steps[contracts.StepValidate] == contracts.StepFailed ||
		steps[contracts.StepPredict] == contracts.StepFailed {
		return contracts.RunFailed
	}
	for _, s := range steps {
		if s != contracts.StepOK {
			return contracts.RunPartial
		}
	}
	return contracts.RunSuccess
}

// errRunFailed marks a FAILED terminal status for the retry loop
var errRunFailed = errors.New("pipeline run failed")

// RunWithRetry executes Run with bounded exponential backoff. A
// concurrent run is permanent, never retried. When every attempt fails,
// a standing pipeline_failure alert is raised before returning.
func (o *Orchestrator) RunWithRetry(ctx context.Context, asOf time.Time) (*contracts.RunRecord, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.config.RetryInitialDelay

	var rec *contracts.RunRecord
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		rec, err = o.Run(ctx, asOf)
		if errors.Is(err, contracts.ErrRunInProgress) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		if rec.Status == contracts.RunFailed {
			o.log.Warn().Int("attempt", attempt).Msg("pipeline run failed, may retry")
			return errRunFailed
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(o.config.MaxRetries)), ctx))

	if err != nil && !errors.Is(err, contracts.ErrRunInProgress) {
		if alertErr := o.alerts.RaisePipelineFailure(ctx, asOf, err); alertErr != nil {
			o.log.Error().Err(alertErr).Msg("failed to raise pipeline failure alert")
		}
	}
	if err != nil {
		return rec, err
	}
	return rec, nil
}
