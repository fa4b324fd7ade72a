package service

// Notifier delivers assignment and completion notifications. Emissions are
// fire-and-forget from the engine's point of view: failures are logged by the
// caller, never propagated into the state transition.
type Notifier interface {
	EmitAssignment(assigneeID, runID, stepID string) error
	EmitCompletion(userID, runID string) error
}

// logNotifier writes notifications to the service log. It stands in for a
// real delivery channel (mail, chat, push) in tests and local runs.
type logNotifier struct {
	logger Logger
}

func NewLogNotifier(logger Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) EmitAssignment(assigneeID, runID, stepID string) error {
	n.logger.Infof("notify %s: run %s is waiting on step %s", assigneeID, runID, stepID)
	return nil
}

func (n *logNotifier) EmitCompletion(userID, runID string) error {
	n.logger.Infof("notify %s: run %s completed", userID, runID)
	return nil
}
