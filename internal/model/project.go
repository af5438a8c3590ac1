package model

import (
	"slices"
	"time"
)

const (
	ProjectStatusOpen       = "open"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusCancelled  = "cancelled"
)

type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ClientID    string    `json:"clientId"`
	ClientName  string    `json:"clientName"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	BudgetMin   int64     `json:"budgetMin"`
	BudgetMax   int64     `json:"budgetMax"`
	Deadline    time.Time `json:"deadline"`
	Status      string    `json:"status"`
	Applicants  []string  `json:"applicants"`
	AssigneeID  string    `json:"assigneeId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p Project) GetID() string { return p.ID }

func (p Project) HasApplicant(userID string) bool {
	return slices.Contains(p.Applicants, userID)
}

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusReview     = "review"
	TaskStatusDone       = "done"
)

type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t Task) GetID() string { return t.ID }

// ValidTaskStatus reports whether s is one of the board columns.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	}
	return false
}
