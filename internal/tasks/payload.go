// Package tasks owns the asynchronous side of the agent: the task state
// machine, webhook delivery to buyer endpoints, and the background
// schedulers that emit delivery reports and advance media buy statuses.
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/toller892/adcp-salesagent/internal/a2a"
	"github.com/toller892/adcp-salesagent/internal/models"
)

// BuildPayload selects the webhook body for a task state change. Terminal
// states carry the full task with its result artifact; intermediate states
// send a lightweight status update event.
func BuildPayload(t *models.Task) (any, error) {
	if !models.TaskStatusTerminal(t.Status) {
		ts := t.UpdatedAt
		return &a2a.TaskStatusUpdateEvent{
			Kind:      a2a.KindStatusUpdate,
			TaskID:    t.TaskID,
			ContextID: t.ContextID,
			Status:    a2a.TaskStatus{State: a2a.TaskState(t.Status), Timestamp: &ts},
			Final:     false,
		}, nil
	}
	return View(t)
}

// View renders a stored task in its A2A wire shape. Only terminal tasks
// carry their result artifact; working and submitted tasks have none.
func View(t *models.Task) (*a2a.Task, error) {
	ts := t.UpdatedAt
	task := &a2a.Task{
		ID:        t.TaskID,
		ContextID: t.ContextID,
		Kind:      a2a.KindTask,
		Status:    a2a.TaskStatus{State: a2a.TaskState(t.Status), Timestamp: &ts},
	}
	if !models.TaskStatusTerminal(t.Status) {
		return task, nil
	}

	result, err := taskResult(t)
	if err != nil {
		return nil, err
	}
	if result != nil {
		task.Artifacts = []a2a.Artifact{{
			ArtifactID: "artifact_" + t.TaskID,
			Name:       t.Skill + "_result",
			Parts:      []a2a.Part{a2a.DataPart(result)},
		}}
	}
	return task, nil
}

// taskResult decodes the stored result payload. On failed tasks the error
// message is folded in under "error" so buyers get one self-contained body.
func taskResult(t *models.Task) (map[string]any, error) {
	var result map[string]any
	if len(t.Result) > 0 {
		if err := json.Unmarshal(t.Result, &result); err != nil {
			return nil, fmt.Errorf("decode result of task %s: %w", t.TaskID, err)
		}
	}
	if t.Status == models.TaskStatusFailed && t.ErrorMessage != "" {
		if result == nil {
			result = make(map[string]any, 1)
		}
		result["error"] = t.ErrorMessage
	}
	return result, nil
}
