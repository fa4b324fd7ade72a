package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/vlied266/work-manager-sub001/pkg/models"
	"github.com/vlied266/work-manager-sub001/pkg/storage"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// procedureRow maps the procedures table; the step list is a JSONB column.
type procedureRow struct {
	ID        string          `db:"id"`
	OrgID     string          `db:"org_id"`
	Title     string          `db:"title"`
	Steps     json.RawMessage `db:"steps"`
	Published bool            `db:"published"`
	CreatedAt sql.NullTime    `db:"created_at"`
	UpdatedAt sql.NullTime    `db:"updated_at"`
}

func (r procedureRow) toModel() (models.Procedure, error) {
	p := models.Procedure{
		ID:        r.ID,
		OrgID:     r.OrgID,
		Title:     r.Title,
		Published: r.Published,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
	if len(r.Steps) > 0 {
		if err := json.Unmarshal(r.Steps, &p.Steps); err != nil {
			return models.Procedure{}, fmt.Errorf("decode steps for procedure %s: %w", r.ID, err)
		}
	}
	return p, nil
}

// SaveProcedure inserts or replaces a procedure definition.
func (s *PostgresStore) SaveProcedure(p models.Procedure) error {
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO procedures (id, org_id, title, steps, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			title = EXCLUDED.title,
			steps = EXCLUDED.steps,
			published = EXCLUDED.published,
			updated_at = CURRENT_TIMESTAMP`,
		p.ID, p.OrgID, p.Title, steps, p.Published)
	if err != nil {
		return fmt.Errorf("save procedure %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetProcedure(id string) (models.Procedure, error) {
	var row procedureRow
	err := s.db.Get(&row, "SELECT * FROM procedures WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Procedure{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Procedure{}, err
	}
	return row.toModel()
}

func (s *PostgresStore) ListProcedures(orgID string) ([]models.Procedure, error) {
	rows := []procedureRow{}
	var err error
	if orgID == "" {
		err = s.db.Select(&rows, "SELECT * FROM procedures ORDER BY created_at DESC")
	} else {
		err = s.db.Select(&rows, "SELECT * FROM procedures WHERE org_id = $1 ORDER BY created_at DESC", orgID)
	}
	if err != nil {
		return nil, err
	}
	procedures := make([]models.Procedure, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		procedures = append(procedures, p)
	}
	return procedures, nil
}

// runRow maps the runs table; log and trigger context are JSONB columns.
type runRow struct {
	ID               string          `db:"id"`
	ProcedureID      string          `db:"procedure_id"`
	OrgID            string          `db:"org_id"`
	CurrentStepIndex int             `db:"current_step_index"`
	Status           string          `db:"status"`
	Log              json.RawMessage `db:"log"`
	AssigneeID       string          `db:"assignee_id"`
	AssigneeKind     string          `db:"assignee_kind"`
	StartedBy        string          `db:"started_by"`
	TriggerContext   json.RawMessage `db:"trigger_context"`
	ErrorDetail      string          `db:"error_detail"`
	StartedAt        sql.NullTime    `db:"started_at"`
	CompletedAt      sql.NullTime    `db:"completed_at"`
	Version          int             `db:"version"`
}

func (r runRow) toModel() (models.Run, error) {
	run := models.Run{
		ID:               r.ID,
		ProcedureID:      r.ProcedureID,
		OrgID:            r.OrgID,
		CurrentStepIndex: r.CurrentStepIndex,
		Status:           models.RunStatus(r.Status),
		AssigneeID:       r.AssigneeID,
		AssigneeKind:     models.AssigneeKind(r.AssigneeKind),
		StartedBy:        r.StartedBy,
		ErrorDetail:      r.ErrorDetail,
		StartedAt:        r.StartedAt.Time,
		Version:          r.Version,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		run.CompletedAt = &t
	}
	if len(r.Log) > 0 {
		if err := json.Unmarshal(r.Log, &run.Log); err != nil {
			return models.Run{}, fmt.Errorf("decode log for run %s: %w", r.ID, err)
		}
	}
	if len(r.TriggerContext) > 0 && string(r.TriggerContext) != "null" {
		if err := json.Unmarshal(r.TriggerContext, &run.TriggerContext); err != nil {
			return models.Run{}, fmt.Errorf("decode trigger context for run %s: %w", r.ID, err)
		}
	}
	return run, nil
}

func encodeRun(run models.Run) (logJSON, triggerJSON []byte, err error) {
	logJSON, err = json.Marshal(run.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("encode log: %w", err)
	}
	triggerJSON, err = json.Marshal(run.TriggerContext)
	if err != nil {
		return nil, nil, fmt.Errorf("encode trigger context: %w", err)
	}
	return logJSON, triggerJSON, nil
}

// CreateRun inserts a fresh run at version 1.
func (s *PostgresStore) CreateRun(run models.Run) error {
	logJSON, triggerJSON, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (id, procedure_id, org_id, current_step_index, status, log,
			assignee_id, assignee_kind, started_by, trigger_context, error_detail,
			started_at, completed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)`,
		run.ID, run.ProcedureID, run.OrgID, run.CurrentStepIndex, run.Status, logJSON,
		run.AssigneeID, run.AssigneeKind, run.StartedBy, triggerJSON, run.ErrorDetail,
		run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetRun(id string) (models.Run, error) {
	var row runRow
	err := s.db.Get(&row, "SELECT * FROM runs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Run{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Run{}, err
	}
	return row.toModel()
}

// UpdateRun replaces the run document guarded by the version it was read at.
// Zero rows affected means a concurrent writer won.
func (s *PostgresStore) UpdateRun(run models.Run) error {
	logJSON, triggerJSON, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE runs
		SET current_step_index = $1,
			status = $2,
			log = $3,
			assignee_id = $4,
			assignee_kind = $5,
			trigger_context = $6,
			error_detail = $7,
			completed_at = $8,
			version = version + 1
		WHERE id = $9 AND version = $10`,
		run.CurrentStepIndex, run.Status, logJSON, run.AssigneeID, run.AssigneeKind,
		triggerJSON, run.ErrorDetail, run.CompletedAt, run.ID, run.Version)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)", run.ID); err != nil {
			return fmt.Errorf("update run %s: %w", run.ID, err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListRuns(procedureID string) ([]models.Run, error) {
	rows := []runRow{}
	var err error
	if procedureID == "" {
		err = s.db.Select(&rows, "SELECT * FROM runs ORDER BY started_at DESC")
	} else {
		err = s.db.Select(&rows, "SELECT * FROM runs WHERE procedure_id = $1 ORDER BY started_at DESC", procedureID)
	}
	if err != nil {
		return nil, err
	}
	runs := make([]models.Run, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}
