package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/flowloom/loom/internal/service"
	"github.com/oklog/ulid/v2"
)

// ─── Execution CRUD ───

type executionRow struct {
	ID          string `db:"id"`
	WorkflowID  string `db:"workflow_id"`
	TriggerName string `db:"trigger_name"`
	Status      string `db:"status"`
	StartedAt   string `db:"started_at"`
	CompletedAt string `db:"completed_at"`
	Log         string `db:"log"`
}

func (p *Postgres) CreateExecution(ctx context.Context, e service.Execution) (*service.Execution, error) {
	logJSON, err := json.Marshal(e.Log)
	if err != nil {
		return nil, fmt.Errorf("marshal execution log: %w", err)
	}

	id := ulid.Make().String()

	query, _, err := p.goqu.Insert(p.tableExecutions).Rows(
		goqu.Record{
			"id":           id,
			"workflow_id":  e.WorkflowID,
			"trigger_name": e.TriggerName,
			"status":       string(e.Status),
			"started_at":   e.StartedAt,
			"completed_at": e.CompletedAt,
			"log":          string(logJSON),
		},
	).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert execution query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create execution for workflow %q: %w", e.WorkflowID, err)
	}

	e.ID = id
	return &e, nil
}

func (p *Postgres) UpdateExecution(ctx context.Context, id string, e service.Execution) (*service.Execution, error) {
	logJSON, err := json.Marshal(e.Log)
	if err != nil {
		return nil, fmt.Errorf("marshal execution log: %w", err)
	}

	query, _, err := p.goqu.Update(p.tableExecutions).Set(
		goqu.Record{
			"status":       string(e.Status),
			"completed_at": e.CompletedAt,
			"log":          string(logJSON),
		},
	).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update execution query: %w", err)
	}

	res, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("update execution %q: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return p.GetExecution(ctx, id)
}

func (p *Postgres) GetExecution(ctx context.Context, id string) (*service.Execution, error) {
	query, _, err := p.goqu.From(p.tableExecutions).
		Select("id", "workflow_id", "trigger_name", "status", "started_at", "completed_at", "log").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get execution query: %w", err)
	}

	var row executionRow
	err = p.db.QueryRowContext(ctx, query).Scan(&row.ID, &row.WorkflowID, &row.TriggerName, &row.Status, &row.StartedAt, &row.CompletedAt, &row.Log)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %q: %w", id, err)
	}

	return executionRowToRecord(row)
}

func (p *Postgres) ListExecutions(ctx context.Context, workflowID string) ([]service.Execution, error) {
	query, _, err := p.goqu.From(p.tableExecutions).
		Select("id", "workflow_id", "trigger_name", "status", "started_at", "completed_at", "log").
		Where(goqu.I("workflow_id").Eq(workflowID)).
		Order(goqu.I("started_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list executions query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list executions for workflow %q: %w", workflowID, err)
	}
	defer rows.Close()

	var result []service.Execution
	for rows.Next() {
		var row executionRow
		if err := rows.Scan(&row.ID, &row.WorkflowID, &row.TriggerName, &row.Status, &row.StartedAt, &row.CompletedAt, &row.Log); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}

		e, err := executionRowToRecord(row)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	return result, rows.Err()
}

func executionRowToRecord(row executionRow) (*service.Execution, error) {
	var log []string
	if row.Log != "" {
		if err := json.Unmarshal([]byte(row.Log), &log); err != nil {
			return nil, fmt.Errorf("unmarshal execution log for %q: %w", row.ID, err)
		}
	}

	return &service.Execution{
		ID:          row.ID,
		WorkflowID:  row.WorkflowID,
		TriggerName: row.TriggerName,
		Status:      service.ExecutionStatus(row.Status),
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		Log:         log,
	}, nil
}
