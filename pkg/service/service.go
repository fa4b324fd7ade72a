package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vlied266/work-manager-sub001/pkg/engine"
	"github.com/vlied266/work-manager-sub001/pkg/models"
	"github.com/vlied266/work-manager-sub001/pkg/storage"
)

// Logger defines the logging interface for RunService.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// RunService drives procedures and their runs: authoring validation, run
// lifecycle, step completion, claiming, and the hand-off to the automated
// step runner. The engine itself stays pure; all I/O lives here.
type RunService struct {
	store    storage.Store
	logger   Logger
	notifier Notifier
	auto     *AutoRunner
}

// NewRunService wires a service with its automated-step runner. A nil
// notifier falls back to log-only delivery.
func NewRunService(ctx context.Context, store storage.Store, logger Logger, notifier Notifier) *RunService {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	svc := &RunService{
		store:    store,
		logger:   logger,
		notifier: notifier,
	}
	svc.auto = NewAutoRunner(ctx, svc, logger)
	svc.auto.Start(0)
	return svc
}

// Auto exposes the automated-step runner, e.g. to register custom executors.
func (s *RunService) Auto() *AutoRunner {
	return s.auto
}

// Stop drains the automated-step runner.
func (s *RunService) Stop() {
	s.auto.Stop()
}

// CreateProcedure validates and persists a procedure definition. Authoring
// errors block creation; warnings are logged loudly and let it through.
func (s *RunService) CreateProcedure(p models.Procedure) (id string, err error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	problems := engine.CheckProcedure(p)
	for _, prob := range problems {
		if prob.Severity == engine.SeverityWarning {
			s.logger.Warnf("procedure %s: %s", p.ID, prob)
		}
	}
	if engine.HasErrors(problems) {
		for _, prob := range problems {
			if prob.Severity == engine.SeverityError {
				return "", errors.Errorf("invalid procedure: %s", prob)
			}
		}
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return "", errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.SaveProcedure(p); err != nil {
		return "", errors.Wrapf(err, "save procedure %s", p.ID)
	}
	s.logger.Infof("Created procedure '%s' with ID %s (%d steps)", p.Title, p.ID, len(p.Steps))
	return p.ID, nil
}

// StartRun creates a new run of a procedure, resolves ownership of the first
// step, and schedules it if it is automated. The trigger payload, when the
// run is started by an external event, stays available to config resolution
// for the whole run.
func (s *RunService) StartRun(procedureID, userID string, trigger map[string]any) (models.Run, error) {
	proc, err := s.store.GetProcedure(procedureID)
	if err != nil {
		return models.Run{}, errors.Wrapf(err, "procedure %s", procedureID)
	}
	if len(proc.Steps) == 0 {
		return models.Run{}, errors.Errorf("procedure %s has no steps", procedureID)
	}

	run := models.Run{
		ID:             uuid.NewString(),
		ProcedureID:    proc.ID,
		OrgID:          proc.OrgID,
		StartedBy:      userID,
		TriggerContext: trigger,
		StartedAt:      time.Now(),
	}
	owner := engine.ResolveAssignment(proc.Steps[0], run)
	run.AssigneeID = owner.AssigneeID
	run.AssigneeKind = owner.AssigneeKind
	run.Status = owner.Status

	if err := s.store.CreateRun(run); err != nil {
		return models.Run{}, errors.Wrapf(err, "create run for procedure %s", procedureID)
	}
	s.logger.Infof("Started run %s of procedure %s for user %s", run.ID, proc.ID, userID)

	s.emitAssignment(run.AssigneeID, run.ID, proc.Steps[0].ID)
	s.scheduleAuto(run, proc)
	return run, nil
}

// CompleteStep applies one step completion. It is the single code path for
// state transitions: human submissions and automated executors both land
// here. A storage.ErrConflict means a concurrent writer won; the caller
// should re-read and retry with fresh state.
func (s *RunService) CompleteStep(runID, userID string, output any, outcome models.Outcome) (models.Run, error) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return models.Run{}, errors.Wrapf(err, "run %s", runID)
	}
	proc, err := s.store.GetProcedure(run.ProcedureID)
	if err != nil {
		return models.Run{}, errors.Wrapf(err, "procedure %s", run.ProcedureID)
	}

	switch run.Status {
	case models.InProgressRunStatus:
		// normal advancement
	case models.FlaggedRunStatus:
		// held for review; an authorized actor resubmits the current step
		s.logger.Infof("Run %s resubmitted by %s while FLAGGED", runID, userID)
	case models.OpenForClaimRunStatus:
		return models.Run{}, errors.Errorf("run %s is open for claim; claim it before submitting", runID)
	default:
		return models.Run{}, errors.Errorf("run %s is %s and cannot accept submissions", runID, run.Status)
	}

	tr, err := engine.CompleteStep(run, proc, output, outcome, time.Now())
	if err != nil {
		return models.Run{}, err
	}
	for _, w := range tr.Warnings {
		s.logger.Warnf("Run %s: %v", runID, w)
	}

	if err := s.store.UpdateRun(tr.Run); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return models.Run{}, errors.Wrapf(err, "run %s was modified concurrently", runID)
		}
		return models.Run{}, errors.Wrapf(err, "save run %s", runID)
	}
	s.logger.Infof("Run %s: completed step %d with outcome %s, now %s",
		runID, run.CurrentStepIndex, outcome, tr.Run.Status)

	// Side effects are best-effort and never roll back the transition.
	if tr.Assignment != nil {
		s.emitAssignment(tr.Assignment.AssigneeID, tr.Run.ID, tr.Assignment.StepID)
	}
	if tr.Completion != nil {
		if err := s.notifier.EmitCompletion(tr.Completion.UserID, tr.Run.ID); err != nil {
			s.logger.Errorf("Failed to emit completion notification for run %s: %v", tr.Run.ID, err)
		}
	}
	s.scheduleAuto(tr.Run, proc)
	return tr.Run, nil
}

// ClaimRun converts a team-queue run into a specific-user run. Any member of
// the assigned team may claim; authorization is the caller's concern.
func (s *RunService) ClaimRun(runID, userID string) (models.Run, error) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return models.Run{}, errors.Wrapf(err, "run %s", runID)
	}
	if run.Status != models.OpenForClaimRunStatus {
		return models.Run{}, errors.Errorf("run %s is not open for claim (status %s)", runID, run.Status)
	}
	run.AssigneeID = userID
	run.AssigneeKind = models.UserAssignee
	run.Status = models.InProgressRunStatus
	if err := s.store.UpdateRun(run); err != nil {
		return models.Run{}, errors.Wrapf(err, "claim run %s", runID)
	}
	s.logger.Infof("Run %s claimed by %s", runID, userID)
	return run, nil
}

// FlagRun maps a system execution failure onto the held-for-review state,
// retaining the technical detail for diagnostics.
func (s *RunService) FlagRun(runID, detail string) error {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return errors.Wrapf(err, "run %s", runID)
	}
	flagged := engine.Flag(run, detail)
	if err := s.store.UpdateRun(flagged); err != nil {
		return errors.Wrapf(err, "flag run %s", runID)
	}
	s.logger.Errorf("Run %s flagged: %s", runID, detail)
	return nil
}

func (s *RunService) GetRun(runID string) (models.Run, error) {
	return s.store.GetRun(runID)
}

func (s *RunService) ListRuns(procedureID string) ([]models.Run, error) {
	return s.store.ListRuns(procedureID)
}

func (s *RunService) GetProcedure(id string) (models.Procedure, error) {
	return s.store.GetProcedure(id)
}

func (s *RunService) ListProcedures(orgID string) ([]models.Procedure, error) {
	return s.store.ListProcedures(orgID)
}

func (s *RunService) emitAssignment(assigneeID, runID, stepID string) {
	if err := s.notifier.EmitAssignment(assigneeID, runID, stepID); err != nil {
		s.logger.Errorf("Failed to emit assignment notification for run %s: %v", runID, err)
	}
}

// scheduleAuto hands the run to the automated-step runner when its new
// current step needs no human actor.
func (s *RunService) scheduleAuto(run models.Run, proc models.Procedure) {
	if run.Status != models.InProgressRunStatus {
		return
	}
	step, ok := run.CurrentStep(proc)
	if !ok || step.Action.HumanEntry() {
		return
	}
	s.auto.Enqueue(run.ID)
}
