package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/vlied266/work-manager-sub001/pkg/engine"
	"github.com/vlied266/work-manager-sub001/pkg/models"
)

const (
	// default executor timeout is 1m
	DefaultStepTimeout = 60 * time.Second
)

// ExecRequest carries everything an automated executor needs: the step with
// its config already resolved against the run context, plus the identifiers
// the external system wants.
type ExecRequest struct {
	RunID   string
	StepID  string
	OrgID   string
	UserID  string
	Step    models.Step
	Config  models.StepConfig
	Context engine.Context
}

// StepExecutorFunc performs one automated step and reports its outcome and
// output. The executor's result feeds back through CompleteStep exactly as a
// human submission would.
type StepExecutorFunc func(ctx context.Context, req ExecRequest) (models.Outcome, any, error)

// AutoRunner executes automated steps as runs advance onto them. Workers pull
// run ids off a channel, resolve the current step's config, dispatch to the
// registered executor for the step's action under a timeout, and feed the
// result back into the service. Executor failures flag the run with the
// technical detail instead of crashing anything.
type AutoRunner struct {
	svc       *RunService
	logger    Logger
	executors map[models.Action]StepExecutorFunc
	queue     chan string
	timeout   time.Duration
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
}

func NewAutoRunner(ctx context.Context, svc *RunService, logger Logger) *AutoRunner {
	ar := &AutoRunner{
		svc:       svc,
		logger:    logger,
		executors: make(map[models.Action]StepExecutorFunc),
		timeout:   DefaultStepTimeout,
		ctx:       ctx,
	}
	ar.Register(models.CompareAction, ruleExecutor)
	ar.Register(models.ValidateAction, ruleExecutor)
	ar.Register(models.CalculateAction, formulaExecutor)
	ar.Register(models.GatewayAction, gatewayExecutor)
	return ar
}

// Register installs the executor for an action, replacing any previous one.
func (ar *AutoRunner) Register(action models.Action, fn StepExecutorFunc) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	ar.executors[action] = fn
}

// Start begins the runner with the specified number of workers.
func (ar *AutoRunner) Start(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ar.queue = make(chan string, workers*4)
	for i := 0; i < workers; i++ {
		ar.wg.Add(1)
		go ar.worker()
	}
}

// Stop closes the queue and waits for in-flight steps to finish.
func (ar *AutoRunner) Stop() {
	close(ar.queue)
	ar.wg.Wait()
}

// Enqueue schedules the run's current step for automated execution. Dropping
// on a full queue is acceptable: the run stays parked on the step and can be
// re-enqueued by the surrounding system.
func (ar *AutoRunner) Enqueue(runID string) {
	select {
	case ar.queue <- runID:
	default:
		ar.logger.Warnf("Auto queue full, dropping run %s (step remains current)", runID)
	}
}

func (ar *AutoRunner) worker() {
	defer ar.wg.Done()
	for runID := range ar.queue {
		if ar.ctx.Err() != nil {
			return
		}
		ar.executeCurrent(runID)
	}
}

// executeCurrent runs the automated step the run is currently parked on.
func (ar *AutoRunner) executeCurrent(runID string) {
	run, err := ar.svc.GetRun(runID)
	if err != nil {
		ar.logger.Errorf("Auto step: failed to load run %s: %v", runID, err)
		return
	}
	if run.Status != models.InProgressRunStatus {
		// someone advanced, claimed or flagged the run in the meantime
		return
	}
	proc, err := ar.svc.GetProcedure(run.ProcedureID)
	if err != nil {
		ar.logger.Errorf("Auto step: failed to load procedure %s: %v", run.ProcedureID, err)
		return
	}
	step, ok := run.CurrentStep(proc)
	if !ok || step.Action.HumanEntry() {
		return
	}

	ar.mu.RLock()
	executor, registered := ar.executors[step.Action]
	ar.mu.RUnlock()
	if !registered {
		ar.flag(runID, fmt.Sprintf("no executor registered for action %s", step.Action))
		return
	}

	ctx := engine.BuildContext(proc, run.Log).WithTrigger(run.TriggerContext)
	cfg := engine.ResolveConfigWith(step.Config, ctx)
	if err := engine.CheckResolved(cfg, step.ID); err != nil {
		ar.flag(runID, err.Error())
		return
	}

	req := ExecRequest{
		RunID:   run.ID,
		StepID:  step.ID,
		OrgID:   run.OrgID,
		UserID:  run.StartedBy,
		Step:    step,
		Config:  cfg,
		Context: ctx,
	}

	execCtx, cancel := context.WithTimeout(ar.ctx, ar.timeout)
	defer cancel()
	outcome, output, err := executor(execCtx, req)
	if err != nil {
		ar.flag(runID, fmt.Sprintf("step %s (%s) failed: %v", step.ID, step.Action, err))
		return
	}

	// Same code path as a human submission.
	if _, err := ar.svc.CompleteStep(run.ID, run.StartedBy, output, outcome); err != nil {
		ar.logger.Errorf("Auto step: failed to complete step %s of run %s: %v", step.ID, runID, err)
	}
}

func (ar *AutoRunner) flag(runID, detail string) {
	if err := ar.svc.FlagRun(runID, detail); err != nil {
		ar.logger.Errorf("Auto step: failed to flag run %s: %v", runID, err)
	}
}

// ruleExecutor evaluates COMPARE/VALIDATE steps.
func ruleExecutor(_ context.Context, req ExecRequest) (models.Outcome, any, error) {
	return engine.EvaluateRule(req.Step, req.Config)
}

// formulaExecutor computes CALCULATE steps.
func formulaExecutor(_ context.Context, req ExecRequest) (models.Outcome, any, error) {
	result, err := engine.EvaluateFormula(req.Config.Formula, req.Context)
	if err != nil {
		return models.FlaggedOutcome, nil, err
	}
	return models.SuccessOutcome, result, nil
}

// gatewayExecutor lets a pure routing step pass through; the router does the
// actual branching from the step's conditions.
func gatewayExecutor(_ context.Context, req ExecRequest) (models.Outcome, any, error) {
	return models.SuccessOutcome, nil, nil
}
