package storage

import (
	"github.com/pkg/errors"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// ErrNotFound is returned when a procedure or run does not exist, as opposed
// to a transient read error.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a run was concurrently modified since it was
// read. Callers should re-read and retry the transition.
var ErrConflict = errors.New("concurrent modification")

// Store defines the persistence operations for the engine.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Procedure operations
	SaveProcedure(p models.Procedure) error
	GetProcedure(id string) (models.Procedure, error)
	ListProcedures(orgID string) ([]models.Procedure, error)

	// Run operations
	CreateRun(r models.Run) error
	GetRun(id string) (models.Run, error)
	// UpdateRun replaces the run document only if the stored version still
	// matches r.Version; it bumps the version on success and returns
	// ErrConflict otherwise.
	UpdateRun(r models.Run) error
	ListRuns(procedureID string) ([]models.Run, error)
}
