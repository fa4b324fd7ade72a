package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlied266/work-manager-sub001/pkg/engine"
	"github.com/vlied266/work-manager-sub001/pkg/models"
	"github.com/vlied266/work-manager-sub001/pkg/service"
	"github.com/vlied266/work-manager-sub001/pkg/storage"
)

type logger struct{}

func (l logger) Infof(format string, args ...interface{})  {}
func (l logger) Warnf(format string, args ...interface{})  {}
func (l logger) Errorf(format string, args ...interface{}) {}

// recordingNotifier captures emissions for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	assignments []string
	completions []string
}

func (n *recordingNotifier) EmitAssignment(assigneeID, runID, stepID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assignments = append(n.assignments, assigneeID+":"+stepID)
	return nil
}

func (n *recordingNotifier) EmitCompletion(userID, runID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completions = append(n.completions, userID)
	return nil
}

func (n *recordingNotifier) snapshot() ([]string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.assignments...), append([]string(nil), n.completions...)
}

func newService(t *testing.T) (*service.RunService, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	svc := service.NewRunService(context.Background(), storage.NewMockStore(), logger{}, notifier)
	t.Cleanup(svc.Stop)
	return svc, notifier
}

func intakeProcedure() models.Procedure {
	return models.Procedure{
		ID:    "proc-intake",
		OrgID: "org-1",
		Title: "Order intake",
		Steps: []models.Step{
			{ID: "step-1", Title: "Enter amount", Action: models.InputAction,
				Config: models.StepConfig{InputType: "number", OutputVariable: "amount_output"}},
			{ID: "step-2", Title: "Review", Action: models.InputAction},
			{ID: "step-3", Title: "Confirm", Action: models.InputAction},
		},
	}
}

func TestRunService_Procedures(t *testing.T) {
	t.Run("CreateAndFetch", func(t *testing.T) {
		svc, _ := newService(t)
		id, err := svc.CreateProcedure(intakeProcedure())
		require.NoError(t, err)

		proc, err := svc.GetProcedure(id)
		require.NoError(t, err)
		assert.Equal(t, "Order intake", proc.Title)
		assert.Len(t, proc.Steps, 3)
	})

	t.Run("GeneratesIDWhenMissing", func(t *testing.T) {
		svc, _ := newService(t)
		p := intakeProcedure()
		p.ID = ""
		id, err := svc.CreateProcedure(p)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("RejectsAuthoringErrors", func(t *testing.T) {
		svc, _ := newService(t)
		p := intakeProcedure()
		p.Steps[0].Routes = &models.Routes{OnSuccessStepID: "missing-step"}
		_, err := svc.CreateProcedure(p)
		assert.Error(t, err)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.GetProcedure("nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestRunService_Lifecycle(t *testing.T) {
	t.Run("LinearRunToCompletion", func(t *testing.T) {
		svc, notifier := newService(t)
		_, err := svc.CreateProcedure(intakeProcedure())
		require.NoError(t, err)

		run, err := svc.StartRun("proc-intake", "user-1", nil)
		require.NoError(t, err)
		assert.Equal(t, models.InProgressRunStatus, run.Status)
		assert.Equal(t, "user-1", run.AssigneeID)

		run, err = svc.CompleteStep(run.ID, "user-1", 120.0, models.SuccessOutcome)
		require.NoError(t, err)
		run, err = svc.CompleteStep(run.ID, "user-1", "looks good", models.SuccessOutcome)
		require.NoError(t, err)
		run, err = svc.CompleteStep(run.ID, "user-1", "confirmed", models.SuccessOutcome)
		require.NoError(t, err)

		assert.Equal(t, models.CompletedRunStatus, run.Status)
		assert.Len(t, run.Log, 3)

		_, completions := notifier.snapshot()
		assert.Equal(t, []string{"user-1"}, completions)
	})

	t.Run("ValidationFailureDoesNotAppend", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateProcedure(intakeProcedure())
		require.NoError(t, err)
		run, err := svc.StartRun("proc-intake", "user-1", nil)
		require.NoError(t, err)

		_, err = svc.CompleteStep(run.ID, "user-1", "", models.SuccessOutcome)
		var vErr *engine.ValidationError
		require.ErrorAs(t, err, &vErr)

		fresh, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Len(t, fresh.Log, 0)
		assert.Equal(t, 0, fresh.CurrentStepIndex)
	})

	t.Run("CompletedRunRejectsSubmissions", func(t *testing.T) {
		svc, _ := newService(t)
		p := intakeProcedure()
		p.Steps = p.Steps[:1]
		_, err := svc.CreateProcedure(p)
		require.NoError(t, err)
		run, err := svc.StartRun(p.ID, "user-1", nil)
		require.NoError(t, err)
		_, err = svc.CompleteStep(run.ID, "user-1", 1.0, models.SuccessOutcome)
		require.NoError(t, err)

		_, err = svc.CompleteStep(run.ID, "user-1", 2.0, models.SuccessOutcome)
		assert.Error(t, err)
	})

	t.Run("TeamQueueClaim", func(t *testing.T) {
		svc, notifier := newService(t)
		p := intakeProcedure()
		p.Steps[1].Assignment = &models.Assignment{Type: models.TeamQueueAssignment, AssigneeID: "team-ops"}
		_, err := svc.CreateProcedure(p)
		require.NoError(t, err)
		run, err := svc.StartRun(p.ID, "user-1", nil)
		require.NoError(t, err)

		run, err = svc.CompleteStep(run.ID, "user-1", 10.0, models.SuccessOutcome)
		require.NoError(t, err)
		assert.Equal(t, models.OpenForClaimRunStatus, run.Status)
		assert.Equal(t, models.TeamAssignee, run.AssigneeKind)

		// submissions are rejected until claimed
		_, err = svc.CompleteStep(run.ID, "user-7", "x", models.SuccessOutcome)
		assert.Error(t, err)

		run, err = svc.ClaimRun(run.ID, "user-7")
		require.NoError(t, err)
		assert.Equal(t, models.InProgressRunStatus, run.Status)
		assert.Equal(t, "user-7", run.AssigneeID)
		assert.Equal(t, models.UserAssignee, run.AssigneeKind)

		_, err = svc.CompleteStep(run.ID, "user-7", "reviewed", models.SuccessOutcome)
		require.NoError(t, err)

		assignments, _ := notifier.snapshot()
		assert.Contains(t, assignments, "team-ops:step-2")
	})

	t.Run("ClaimRequiresOpenStatus", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateProcedure(intakeProcedure())
		require.NoError(t, err)
		run, err := svc.StartRun("proc-intake", "user-1", nil)
		require.NoError(t, err)

		_, err = svc.ClaimRun(run.ID, "user-2")
		assert.Error(t, err)
	})

	t.Run("FlagAndResubmit", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateProcedure(intakeProcedure())
		require.NoError(t, err)
		run, err := svc.StartRun("proc-intake", "user-1", nil)
		require.NoError(t, err)

		require.NoError(t, svc.FlagRun(run.ID, "upstream extraction failed"))
		flagged, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.FlaggedRunStatus, flagged.Status)
		assert.Equal(t, "upstream extraction failed", flagged.ErrorDetail)

		// an authorized actor resubmits the held step
		resubmitted, err := svc.CompleteStep(run.ID, "supervisor-1", 99.0, models.SuccessOutcome)
		require.NoError(t, err)
		assert.Equal(t, models.InProgressRunStatus, resubmitted.Status)
		assert.Empty(t, resubmitted.ErrorDetail)
		assert.Equal(t, 1, resubmitted.CurrentStepIndex)
	})
}

func TestRunService_AutomatedSteps(t *testing.T) {
	waitForStatus := func(t *testing.T, svc *service.RunService, runID string, status models.RunStatus) models.Run {
		t.Helper()
		var run models.Run
		require.Eventually(t, func() bool {
			var err error
			run, err = svc.GetRun(runID)
			return err == nil && run.Status == status
		}, 5*time.Second, 10*time.Millisecond)
		return run
	}

	t.Run("ValidateStepBranches", func(t *testing.T) {
		svc, _ := newService(t)
		proc := models.Procedure{
			ID:    "proc-validate",
			OrgID: "org-1",
			Title: "Score check",
			Steps: []models.Step{
				{ID: "step-1", Title: "Score", Action: models.InputAction,
					Config: models.StepConfig{InputType: "number"}},
				{ID: "step-2", Title: "Check", Action: models.ValidateAction,
					Config: models.StepConfig{Rule: engine.RuleGreaterThan, Target: "{{step_1_output}}", Value: "70"},
					Routes: &models.Routes{OnSuccessStepID: "step-3", OnFailureStepID: models.CompletedTarget}},
				{ID: "step-3", Title: "Escalate", Action: models.InputAction},
			},
		}
		_, err := svc.CreateProcedure(proc)
		require.NoError(t, err)

		run, err := svc.StartRun(proc.ID, "user-1", nil)
		require.NoError(t, err)
		_, err = svc.CompleteStep(run.ID, "user-1", 85.0, models.SuccessOutcome)
		require.NoError(t, err)

		// the VALIDATE step runs automatically and routes to step-3
		require.Eventually(t, func() bool {
			r, err := svc.GetRun(run.ID)
			return err == nil && r.CurrentStepIndex == 2
		}, 5*time.Second, 10*time.Millisecond)
		final, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Len(t, final.Log, 2)
		assert.Equal(t, models.ValidateAction, final.Log[1].Action)
	})

	t.Run("ValidateStepFailureCompletesEarly", func(t *testing.T) {
		svc, _ := newService(t)
		proc := models.Procedure{
			ID:    "proc-validate-low",
			OrgID: "org-1",
			Title: "Score check",
			Steps: []models.Step{
				{ID: "step-1", Action: models.InputAction, Config: models.StepConfig{InputType: "number"}},
				{ID: "step-2", Action: models.ValidateAction,
					Config: models.StepConfig{Rule: engine.RuleGreaterThan, Target: "{{step_1_output}}", Value: "70"},
					Routes: &models.Routes{OnSuccessStepID: "step-3", OnFailureStepID: models.CompletedTarget}},
				{ID: "step-3", Action: models.InputAction},
			},
		}
		_, err := svc.CreateProcedure(proc)
		require.NoError(t, err)

		run, err := svc.StartRun(proc.ID, "user-1", nil)
		require.NoError(t, err)
		_, err = svc.CompleteStep(run.ID, "user-1", 50.0, models.SuccessOutcome)
		require.NoError(t, err)

		waitForStatus(t, svc, run.ID, models.CompletedRunStatus)
	})

	t.Run("GatewayRoutesBySeverity", func(t *testing.T) {
		svc, _ := newService(t)
		proc := models.Procedure{
			ID:    "proc-gateway",
			OrgID: "org-1",
			Title: "Triage",
			Steps: []models.Step{
				{ID: "step-1", Title: "Severity", Action: models.InputAction,
					Config: models.StepConfig{InputType: "select", Options: []string{"Critical", "Low"},
						OutputVariable: "severity"}},
				{ID: "gw", Action: models.GatewayAction,
					Routes: &models.Routes{
						Conditions: []models.RouteCondition{
							{Variable: "severity", Operator: "==", Value: "Critical", TargetStepID: "step-escalate"},
						},
						DefaultNextStepID: "step-normal",
					}},
				{ID: "step-escalate", Title: "Escalate", Action: models.InputAction},
				{ID: "step-normal", Title: "Normal", Action: models.InputAction},
			},
		}
		_, err := svc.CreateProcedure(proc)
		require.NoError(t, err)

		run, err := svc.StartRun(proc.ID, "user-1", nil)
		require.NoError(t, err)
		_, err = svc.CompleteStep(run.ID, "user-1", "Critical", models.SuccessOutcome)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			r, err := svc.GetRun(run.ID)
			return err == nil && r.CurrentStepIndex == 2 // step-escalate
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("CalculateStepProducesOutput", func(t *testing.T) {
		svc, _ := newService(t)
		proc := models.Procedure{
			ID:    "proc-calc",
			OrgID: "org-1",
			Title: "Pricing",
			Steps: []models.Step{
				{ID: "step-1", Title: "Unit price", Action: models.InputAction,
					Config: models.StepConfig{InputType: "number", OutputVariable: "price"}},
				{ID: "step-2", Title: "Total", Action: models.CalculateAction,
					Config: models.StepConfig{Formula: "price * 3", OutputVariable: "total"}},
				{ID: "step-3", Title: "Confirm", Action: models.InputAction},
			},
		}
		_, err := svc.CreateProcedure(proc)
		require.NoError(t, err)

		run, err := svc.StartRun(proc.ID, "user-1", nil)
		require.NoError(t, err)
		_, err = svc.CompleteStep(run.ID, "user-1", 10.0, models.SuccessOutcome)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			r, err := svc.GetRun(run.ID)
			return err == nil && len(r.Log) == 2
		}, 5*time.Second, 10*time.Millisecond)

		fresh, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, 30.0, fresh.Log[1].Output)
	})

	t.Run("ExecutorErrorFlagsRun", func(t *testing.T) {
		svc, _ := newService(t)
		proc := models.Procedure{
			ID:    "proc-broken-calc",
			OrgID: "org-1",
			Title: "Broken",
			Steps: []models.Step{
				{ID: "step-1", Action: models.InputAction, Config: models.StepConfig{InputType: "number"}},
				{ID: "step-2", Action: models.CalculateAction,
					Config: models.StepConfig{Formula: "nonsense +"}},
			},
		}
		_, err := svc.CreateProcedure(proc)
		require.NoError(t, err)

		run, err := svc.StartRun(proc.ID, "user-1", nil)
		require.NoError(t, err)
		_, err = svc.CompleteStep(run.ID, "user-1", 10.0, models.SuccessOutcome)
		require.NoError(t, err)

		flagged := waitForStatus(t, svc, run.ID, models.FlaggedRunStatus)
		assert.NotEmpty(t, flagged.ErrorDetail)
	})

	t.Run("AutomatedFirstStepRunsOnStart", func(t *testing.T) {
		svc, _ := newService(t)
		proc := models.Procedure{
			ID:    "proc-auto-first",
			OrgID: "org-1",
			Title: "Triggered",
			Steps: []models.Step{
				{ID: "step-1", Title: "Total", Action: models.CalculateAction,
					Config: models.StepConfig{Formula: "trigger.amount * 2", OutputVariable: "doubled"}},
				{ID: "step-2", Title: "Review", Action: models.InputAction},
			},
		}
		_, err := svc.CreateProcedure(proc)
		require.NoError(t, err)

		run, err := svc.StartRun(proc.ID, "user-1", map[string]any{"amount": 21.0})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			r, err := svc.GetRun(run.ID)
			return err == nil && len(r.Log) == 1
		}, 5*time.Second, 10*time.Millisecond)

		fresh, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, 42.0, fresh.Log[0].Output)
		assert.Equal(t, 1, fresh.CurrentStepIndex)
	})
}
