package journal

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"orchestrator/internal/engine"
)

var _ engine.Recorder = (*Journal)(nil)

// Row is one step execution.
type Row struct {
	ID         uint64    `gorm:"primaryKey"`
	PipelineID string    `gorm:"type:uuid;index"`
	UserID     string    `gorm:"index"`
	StepID     string    `gorm:"type:uuid"`
	Action     string    `gorm:"size:32"`
	Signature  string    `gorm:"size:128"`
	Error      string    `gorm:"type:text"`
	StartedAt  time.Time `gorm:"index"`
	DurationMs int64
}

func (Row) TableName() string {
	return "step_executions"
}

// Journal writes step executions to Postgres.
type Journal struct {
	db *gorm.DB
}

// New wraps db. Inserts are single rows and run outside a transaction.
func New(db *gorm.DB) *Journal {
	return &Journal{db: db.Session(&gorm.Session{SkipDefaultTransaction: true})}
}

// Migrate creates the table when missing.
func (j *Journal) Migrate(ctx context.Context) error {
	if err := j.db.WithContext(ctx).AutoMigrate(&Row{}); err != nil {
		return errors.Wrap(err, "migrate journal")
	}
	return nil
}

func (j *Journal) Record(ctx context.Context, e engine.Execution) error {
	row := toRow(e)
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert execution").With("pipeline", row.PipelineID)
	}
	return nil
}

// Executions lists the executions of one owned pipeline, oldest first.
func (j *Journal) Executions(ctx context.Context, userID, pipelineID string) ([]Row, error) {
	var rows []Row
	err := j.db.WithContext(ctx).
		Where("user_id = ? AND pipeline_id = ?", userID, pipelineID).
		Order("started_at").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query executions").With("pipeline", pipelineID)
	}
	return rows, nil
}

func toRow(e engine.Execution) Row {
	row := Row{
		PipelineID: e.PipelineID.String(),
		UserID:     e.UserID,
		StepID:     e.StepID.String(),
		Action:     string(e.Action),
		Signature:  e.Signature,
		StartedAt:  e.StartedAt,
		DurationMs: e.Duration.Milliseconds(),
	}
	if e.Err != nil {
		row.Error = e.Err.Error()
	}
	return row
}
