package project

import (
	"context"
	"sort"
	"strings"
	"time"

	"xhsmarket/internal/event"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
)

type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssigneeID  string     `json:"assigneeId"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
}

type TaskUpdate struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	AssigneeID  *string    `json:"assigneeId"`
	Status      *string    `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
}

// ListTasks returns the project's tasks, oldest first.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	tasks, err := store.Filter(ctx, s.tasks, func(t model.Task) bool { return t.ProjectID == projectID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// taskEditor may touch the board: the client, the assigned creator, or an admin.
func (s *Service) taskEditor(ctx context.Context, actor service.Actor, projectID string) (model.Project, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if !actor.CanManage(p.ClientID) && (p.AssigneeID == "" || actor.UserID != p.AssigneeID) {
		return model.Project{}, service.Forbidden("not a member of this project")
	}
	return p, nil
}

func (s *Service) CreateTask(ctx context.Context, actor service.Actor, projectID string, in TaskInput) (model.Task, error) {
	p, err := s.taskEditor(ctx, actor, projectID)
	if err != nil {
		return model.Task{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Task{}, service.Invalid("title is required")
	}
	status := in.Status
	if status == "" {
		status = model.TaskStatusTodo
	}
	if !model.ValidTaskStatus(status) {
		return model.Task{}, service.Invalid("unknown task status %q", status)
	}
	assignee := in.AssigneeID
	if assignee == "" {
		assignee = p.AssigneeID
	}

	now := s.now().UTC()
	t := model.Task{
		ID:          service.NewID(),
		ProjectID:   p.ID,
		Title:       title,
		Description: in.Description,
		AssigneeID:  assignee,
		Status:      status,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Put(ctx, t); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// UpdateTask edits a task; a status change publishes task.updated.
func (s *Service) UpdateTask(ctx context.Context, actor service.Actor, taskID string, in TaskUpdate) (model.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if _, err := s.taskEditor(ctx, actor, t.ProjectID); err != nil {
		return model.Task{}, err
	}

	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if title == "" {
			return model.Task{}, service.Invalid("title is required")
		}
	}
	if in.Status != nil && !model.ValidTaskStatus(*in.Status) {
		return model.Task{}, service.Invalid("unknown task status %q", *in.Status)
	}

	var statusChanged bool
	t, err = s.tasks.Update(ctx, taskID, func(t *model.Task) error {
		statusChanged = false
		if in.Title != nil {
			t.Title = title
		}
		if in.Description != nil {
			t.Description = *in.Description
		}
		if in.AssigneeID != nil {
			t.AssigneeID = *in.AssigneeID
		}
		if in.DueDate != nil {
			t.DueDate = in.DueDate
		}
		if in.Status != nil && *in.Status != t.Status {
			t.Status = *in.Status
			statusChanged = true
		}
		t.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}

	if statusChanged {
		s.publish(ctx, event.TaskUpdated, event.TaskUpdatedPayload{
			TaskID:     t.ID,
			ProjectID:  t.ProjectID,
			Title:      t.Title,
			AssigneeID: t.AssigneeID,
			Status:     t.Status,
			OccurredAt: t.UpdatedAt,
		})
	}
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, actor service.Actor, taskID string) error {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.taskEditor(ctx, actor, t.ProjectID); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, taskID)
}
