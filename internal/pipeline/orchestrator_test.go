package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/predict"
	"github.com/ymatsuda/cuprum/internal/store/storetest"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

type stubValidator struct {
	severity contracts.Severity
	err      error
}

func (s stubValidator) Validate(_ context.Context, runID string, asOf time.Time) (*contracts.ValidationReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	report := &contracts.ValidationReport{RunID: runID, AsOf: asOf}
	if s.severity != contracts.SeverityOK {
		report.Results = []contracts.ValidationResult{{
			RunID: runID, CheckName: "freshness", Severity: s.severity, Detail: "stub",
		}}
	}
	return report, nil
}

type stubPredictor struct {
	mu           sync.Mutex
	err          error
	failuresLeft int
	calls        int
}

func (s *stubPredictor) Predict(_ context.Context, asOf time.Time) (*predict.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, errors.New("transient")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &predict.Result{PredictionDate: asOf, Succeeded: []string{"alpha"}}, nil
}

func (s *stubPredictor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubReconciler struct{ err error }

func (s stubReconciler) Reconcile(context.Context, time.Time) (*predict.ReconcileStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &predict.ReconcileStats{}, nil
}

type stubEvaluator struct{ err error }

func (s stubEvaluator) Evaluate(context.Context, time.Time) ([]contracts.PerformanceRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []contracts.PerformanceRecord{{ModelName: "alpha", HorizonDays: 1}}, nil
}

type stubAlerts struct {
	mu       sync.Mutex
	failures []error
	runs     int
}

func (s *stubAlerts) Run(context.Context, time.Time, *contracts.ValidationReport,
	[]contracts.PerformanceRecord) ([]contracts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return nil, nil
}

func (s *stubAlerts) RaisePipelineFailure(_ context.Context, _ time.Time, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, cause)
	return nil
}

type fixture struct {
	store      *storetest.Store
	validator  stubValidator
	predictor  *stubPredictor
	reconciler stubReconciler
	evaluator  stubEvaluator
	alerts     *stubAlerts
}

func newFixture() *fixture {
	return &fixture{
		store:     storetest.New(),
		predictor: &stubPredictor{},
		alerts:    &stubAlerts{},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	return New(f.store.Runs(), f.store.Validations(), f.validator, f.predictor,
		f.reconciler, f.evaluator, f.alerts, nil, Config{
			RunTimeout:        time.Minute,
			MaxRetries:        2,
			RetryInitialDelay: time.Millisecond,
		}, logger.NewNop().Zerolog())
}

var asOf = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

func TestRunAllStepsOK(t *testing.T) {
	f := newFixture()

	rec, err := f.orchestrator().Run(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, contracts.RunSuccess, rec.Status)
	for _, step := range []string{
		contracts.StepValidate, contracts.StepPredict, contracts.StepReconcile,
		contracts.StepEvaluate, contracts.StepAlert,
	} {
		assert.Equal(t, contracts.StepOK, rec.StepStatuses[step], step)
	}
	require.NotNil(t, rec.FinishedAt)
	assert.Equal(t, 1, f.alerts.runs)

	// Validation report persisted under the run ID.
	results, err := f.store.Validations().GetByRunID(context.Background(), rec.RunID)
	require.NoError(t, err)
	assert.Empty(t, results) // OK report has no findings in the stub
}

func TestRunValidatorErrorSkipsPredict(t *testing.T) {
	f := newFixture()
	f.validator = stubValidator{err: errors.New("db down")}

	rec, err := f.orchestrator().Run(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, contracts.StepFailed, rec.StepStatuses[contracts.StepValidate])
	assert.Equal(t, contracts.StepSkipped, rec.StepStatuses[contracts.StepPredict])
	assert.Zero(t, f.predictor.callCount())
	// Reconcile and alert still ran.
	assert.Equal(t, contracts.StepOK, rec.StepStatuses[contracts.StepReconcile])
	assert.Equal(t, contracts.StepOK, rec.StepStatuses[contracts.StepAlert])
	assert.Equal(t, contracts.RunFailed, rec.Status)
}

func TestRunFindingsDoNotBlockPredict(t *testing.T) {
	f := newFixture()
	f.validator = stubValidator{severity: contracts.SeverityError}

	rec, err := f.orchestrator().Run(context.Background(), asOf)
	require.NoError(t, err)

	// Findings are data, not failures: a completed validation with an
	// ERROR finding still forecasts, and the finding reaches the alert
	// step instead.
	assert.Equal(t, contracts.StepOK, rec.StepStatuses[contracts.StepValidate])
	assert.Equal(t, contracts.StepOK, rec.StepStatuses[contracts.StepPredict])
	assert.Equal(t, 1, f.predictor.callCount())
	assert.Equal(t, contracts.RunSuccess, rec.Status)
	assert.Equal(t, 1, f.alerts.runs)
}

func TestRunWarningsDoNotBlockPredict(t *testing.T) {
	f := newFixture()
	f.validator = stubValidator{severity: contracts.SeverityWarning}

	rec, err := f.orchestrator().Run(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, contracts.RunSuccess, rec.Status)
	assert.Equal(t, 1, f.predictor.callCount())
}

func TestRunReconcileFailureSkipsEvaluate(t *testing.T) {
	f := newFixture()
	f.reconciler = stubReconciler{err: errors.New("db down")}

	rec, err := f.orchestrator().Run(context.Background(), asOf)
	require.NoError(t, err)

	assert.Equal(t, contracts.StepFailed, rec.StepStatuses[contracts.StepReconcile])
	assert.Equal(t, contracts.StepSkipped, rec.StepStatuses[contracts.StepEvaluate])
	assert.Equal(t, contracts.RunPartial, rec.Status)
}

func TestRunSingleFlight(t *testing.T) {
	f := newFixture()
	orch := f.orchestrator()

	// Simulate a concurrent run holding the slot.
	require.NoError(t, f.store.Runs().TryStart(context.Background(), &contracts.RunRecord{
		RunID: "other", JobName: contracts.JobPipeline, StartedAt: time.Now(),
	}))

	_, err := orch.Run(context.Background(), asOf)
	assert.ErrorIs(t, err, contracts.ErrRunInProgress)
}

func TestRunWithRetryRecoversFromFailure(t *testing.T) {
	f := newFixture()
	f.predictor.failuresLeft = 1
	orch := f.orchestrator()

	rec, err := orch.RunWithRetry(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, contracts.RunSuccess, rec.Status)
	assert.Equal(t, 2, f.predictor.callCount())
	assert.Empty(t, f.alerts.failures)
}

func TestRunWithRetryExhaustionRaisesAlert(t *testing.T) {
	f := newFixture()
	f.predictor.err = errors.New("persistent")
	orch := f.orchestrator()

	rec, err := orch.RunWithRetry(context.Background(), asOf)
	require.Error(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, contracts.RunFailed, rec.Status)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 3, f.predictor.callCount())
	require.Len(t, f.alerts.failures, 1)
}

func TestRunWithRetryConcurrentRunIsPermanent(t *testing.T) {
	f := newFixture()
	orch := f.orchestrator()

	require.NoError(t, f.store.Runs().TryStart(context.Background(), &contracts.RunRecord{
		RunID: "other", JobName: contracts.JobPipeline, StartedAt: time.Now(),
	}))

	_, err := orch.RunWithRetry(context.Background(), asOf)
	assert.ErrorIs(t, err, contracts.ErrRunInProgress)
	// No pipeline_failure alert for a concurrency rejection.
	assert.Empty(t, f.alerts.failures)
}

func TestRunRecordPersisted(t *testing.T) {
	f := newFixture()

	rec, err := f.orchestrator().Run(context.Background(), asOf)
	require.NoError(t, err)

	runs := f.store.AllRuns(contracts.JobPipeline)
	require.Len(t, runs, 1)
	assert.Equal(t, rec.RunID, runs[0].RunID)
	assert.Equal(t, contracts.RunSuccess, runs[0].Status)
	assert.Len(t, runs[0].StepStatuses, 5)
}
