package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toller892/adcp-salesagent/internal/models"
)

// GetContext loads one conversation context.
func (p *Postgres) GetContext(ctx context.Context, tenantID, contextID string) (*models.Context, error) {
	var c models.Context
	err := p.run(ctx, "get context", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT tenant_id, context_id, principal_id, created_at, last_activity_at
			 FROM contexts WHERE tenant_id = $1 AND context_id = $2`,
			tenantID, contextID)
		err := row.Scan(&c.TenantID, &c.ContextID, &c.PrincipalID, &c.CreatedAt, &c.LastActivityAt)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("scan context: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertContext creates the context on first contact and bumps the activity
// timestamp on every later one.
func (p *Postgres) UpsertContext(ctx context.Context, c *models.Context) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.LastActivityAt = now
	return p.run(ctx, "upsert context", func() error {
		row := p.DB.QueryRowContext(ctx,
			`INSERT INTO contexts (tenant_id, context_id, principal_id, created_at, last_activity_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (tenant_id, context_id)
			 DO UPDATE SET last_activity_at = EXCLUDED.last_activity_at
			 RETURNING created_at, last_activity_at`,
			c.TenantID, c.ContextID, c.PrincipalID, c.CreatedAt, c.LastActivityAt)
		if err := row.Scan(&c.CreatedAt, &c.LastActivityAt); err != nil {
			return fmt.Errorf("upsert context: %w", err)
		}
		return nil
	})
}

const taskCols = `tenant_id, task_id, context_id, principal_id, skill, status, transport,
	request, result, error_message, push_config, created_at, updated_at`

func scanTask(row rowScanner, t *models.Task) error {
	var (
		transport, errMsg        sql.NullString
		request, result, pushCfg []byte
	)
	err := row.Scan(&t.TenantID, &t.TaskID, &t.ContextID, &t.PrincipalID, &t.Skill,
		&t.Status, &transport, &request, &result, &errMsg, &pushCfg,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan task: %w", err)
	}
	t.Transport = transport.String
	t.ErrorMessage = errMsg.String
	if len(request) > 0 {
		t.Request = append([]byte(nil), request...)
	}
	if len(result) > 0 {
		t.Result = append([]byte(nil), result...)
	}
	if err := unmarshalJSONB(pushCfg, &t.PushConfig); err != nil {
		return fmt.Errorf("task push_config: %w", err)
	}
	return nil
}

// GetTask loads one task.
func (p *Postgres) GetTask(ctx context.Context, tenantID, taskID string) (*models.Task, error) {
	var t models.Task
	err := p.run(ctx, "get task", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+taskCols+` FROM tasks WHERE tenant_id = $1 AND task_id = $2`,
			tenantID, taskID)
		return scanTask(row, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns a tenant's tasks oldest first, optionally narrowed to
// one principal.
func (p *Postgres) ListTasks(ctx context.Context, tenantID, principalID string) ([]models.Task, error) {
	var out []models.Task
	err := p.run(ctx, "list tasks", func() error {
		out = nil
		query := `SELECT ` + taskCols + ` FROM tasks WHERE tenant_id = $1`
		args := []any{tenantID}
		if principalID != "" {
			query += ` AND principal_id = $2`
			args = append(args, principalID)
		}
		query += ` ORDER BY created_at`
		rows, err := p.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var t models.Task
			if err := scanTask(rows, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// InsertTask creates a task row.
func (p *Postgres) InsertTask(ctx context.Context, t *models.Task) error {
	pushCfg, err := jsonbOrNull(t.PushConfig)
	if err != nil {
		return fmt.Errorf("marshal push_config: %w", err)
	}
	request, err := jsonbOrNull(t.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	result, err := jsonbOrNull(t.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return p.run(ctx, "insert task", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO tasks (tenant_id, task_id, context_id, principal_id, skill, status,
				transport, request, result, error_message, push_config, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, NULLIF($10, ''),
				$11, $12, $13)`,
			t.TenantID, t.TaskID, t.ContextID, t.PrincipalID, t.Skill, t.Status,
			t.Transport, request, result, t.ErrorMessage, pushCfg, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdateTask overwrites a task row.
func (p *Postgres) UpdateTask(ctx context.Context, t models.Task) error {
	pushCfg, err := jsonbOrNull(t.PushConfig)
	if err != nil {
		return fmt.Errorf("marshal push_config: %w", err)
	}
	result, err := jsonbOrNull(t.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return p.run(ctx, "update task", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE tasks SET status = $3, result = $4, error_message = NULLIF($5, ''),
				push_config = $6, updated_at = $7
			 WHERE tenant_id = $1 AND task_id = $2`,
			t.TenantID, t.TaskID, t.Status, result, t.ErrorMessage, pushCfg,
			time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

const stepCols = `tenant_id, step_id, task_id, step_type, status, comments, object_mappings,
	created_at, updated_at`

func scanStep(row rowScanner, s *models.WorkflowStep) error {
	var comments, mappings []byte
	err := row.Scan(&s.TenantID, &s.StepID, &s.TaskID, &s.StepType, &s.Status,
		&comments, &mappings, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan workflow step: %w", err)
	}
	if err := unmarshalJSONB(comments, &s.Comments); err != nil {
		return fmt.Errorf("step comments: %w", err)
	}
	if err := unmarshalJSONB(mappings, &s.Mappings); err != nil {
		return fmt.Errorf("step object_mappings: %w", err)
	}
	return nil
}

// InsertWorkflowStep creates a step row.
func (p *Postgres) InsertWorkflowStep(ctx context.Context, s *models.WorkflowStep) error {
	comments, err := jsonbList(s.Comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	if err := models.ValidateComments(comments); err != nil {
		return err
	}
	mappings, err := jsonbList(s.Mappings)
	if err != nil {
		return fmt.Errorf("marshal object_mappings: %w", err)
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return p.run(ctx, "insert workflow step", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO workflow_steps (tenant_id, step_id, task_id, step_type, status,
				comments, object_mappings, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.TenantID, s.StepID, s.TaskID, s.StepType, s.Status, comments, mappings,
			s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return mapInsertErr(err)
		}
		return nil
	})
}

// UpdateWorkflowStep overwrites a step row.
func (p *Postgres) UpdateWorkflowStep(ctx context.Context, s models.WorkflowStep) error {
	comments, err := jsonbList(s.Comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	if err := models.ValidateComments(comments); err != nil {
		return err
	}
	mappings, err := jsonbList(s.Mappings)
	if err != nil {
		return fmt.Errorf("marshal object_mappings: %w", err)
	}
	return p.run(ctx, "update workflow step", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE workflow_steps SET status = $3, comments = $4, object_mappings = $5,
				updated_at = $6
			 WHERE tenant_id = $1 AND step_id = $2`,
			s.TenantID, s.StepID, s.Status, comments, mappings, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("update workflow step: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// ListWorkflowSteps returns a task's steps oldest first.
func (p *Postgres) ListWorkflowSteps(ctx context.Context, tenantID, taskID string) ([]models.WorkflowStep, error) {
	var out []models.WorkflowStep
	err := p.run(ctx, "list workflow steps", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+stepCols+` FROM workflow_steps
			 WHERE tenant_id = $1 AND task_id = $2 ORDER BY created_at`,
			tenantID, taskID)
		if err != nil {
			return fmt.Errorf("query workflow steps: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var s models.WorkflowStep
			if err := scanStep(rows, &s); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

const pushConfigCols = `tenant_id, config_id, task_id, principal_id, url, token,
	auth_schemes, credentials, created_at`

func scanPushConfig(row rowScanner, c *models.PushNotificationConfig) error {
	var (
		token, credentials sql.NullString
		schemes            []byte
	)
	err := row.Scan(&c.TenantID, &c.ID, &c.TaskID, &c.PrincipalID, &c.URL,
		&token, &schemes, &credentials, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scan push config: %w", err)
	}
	c.Token = token.String
	c.Credentials = credentials.String
	if err := unmarshalJSONB(schemes, &c.AuthSchemes); err != nil {
		return fmt.Errorf("push config auth_schemes: %w", err)
	}
	return nil
}

// GetPushConfig loads one active webhook subscription for a task.
func (p *Postgres) GetPushConfig(ctx context.Context, tenantID, taskID, configID string) (*models.PushNotificationConfig, error) {
	var c models.PushNotificationConfig
	err := p.run(ctx, "get push config", func() error {
		row := p.DB.QueryRowContext(ctx,
			`SELECT `+pushConfigCols+` FROM push_notification_configs
			 WHERE tenant_id = $1 AND task_id = $2 AND config_id = $3 AND is_active`,
			tenantID, taskID, configID)
		return scanPushConfig(row, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListPushConfigs returns a task's active webhook subscriptions.
func (p *Postgres) ListPushConfigs(ctx context.Context, tenantID, taskID string) ([]models.PushNotificationConfig, error) {
	var out []models.PushNotificationConfig
	err := p.run(ctx, "list push configs", func() error {
		out = nil
		rows, err := p.DB.QueryContext(ctx,
			`SELECT `+pushConfigCols+` FROM push_notification_configs
			 WHERE tenant_id = $1 AND task_id = $2 AND is_active ORDER BY config_id`,
			tenantID, taskID)
		if err != nil {
			return fmt.Errorf("query push configs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c models.PushNotificationConfig
			if err := scanPushConfig(rows, &c); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// UpsertPushConfig creates or replaces a webhook subscription, reviving it
// if it was soft deleted.
func (p *Postgres) UpsertPushConfig(ctx context.Context, c *models.PushNotificationConfig) error {
	schemes, err := jsonbList(c.AuthSchemes)
	if err != nil {
		return fmt.Errorf("marshal auth_schemes: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return p.run(ctx, "upsert push config", func() error {
		_, err := p.DB.ExecContext(ctx,
			`INSERT INTO push_notification_configs (tenant_id, config_id, task_id,
				principal_id, url, token, auth_schemes, credentials, is_active, created_at)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), TRUE, $9)
			 ON CONFLICT (tenant_id, config_id)
			 DO UPDATE SET url = EXCLUDED.url, token = EXCLUDED.token,
				auth_schemes = EXCLUDED.auth_schemes, credentials = EXCLUDED.credentials,
				is_active = TRUE`,
			c.TenantID, c.ID, c.TaskID, c.PrincipalID, c.URL, c.Token, schemes,
			c.Credentials, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert push config: %w", err)
		}
		return nil
	})
}

// DeletePushConfig deactivates a subscription. The row survives for audit
// but stops matching reads and deliveries.
func (p *Postgres) DeletePushConfig(ctx context.Context, tenantID, taskID, configID string) error {
	return p.run(ctx, "delete push config", func() error {
		res, err := p.DB.ExecContext(ctx,
			`UPDATE push_notification_configs SET is_active = FALSE
			 WHERE tenant_id = $1 AND task_id = $2 AND config_id = $3 AND is_active`,
			tenantID, taskID, configID)
		if err != nil {
			return fmt.Errorf("delete push config: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}
