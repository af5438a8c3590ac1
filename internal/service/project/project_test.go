package project

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/fixtures"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store/kv"
	"xhsmarket/pkg/rbac"
)

var (
	studio = service.Actor{UserID: "u-studio", Role: rbac.RoleEnterprise}
	lin    = service.Actor{UserID: "u-lin", Role: rbac.RoleCreator}
	zhou   = service.Actor{UserID: "u-zhou", Role: rbac.RoleCreator}
	amy    = service.Actor{UserID: "u-amy", Role: rbac.RoleUser}
	admin  = service.Actor{UserID: "u-admin", Role: rbac.RoleAdmin}
)

func newService(t *testing.T) (*Service, *event.Recorder) {
	t.Helper()
	db, err := kv.OpenMemory(context.Background(), fixtures.MustLoad(), zap.NewNop())
	require.NoError(t, err)
	rec := &event.Recorder{}
	return NewService(db.Store, rec, zap.NewNop()), rec
}

func projectIDs(items []model.Project) []string {
	out := make([]string, 0, len(items))
	for _, p := range items {
		out = append(out, p.ID)
	}
	return out
}

func TestListFilterAndSort(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"newest", Filter{}, []string{"proj-1", "proj-2", "proj-3"}},
		{"budget", Filter{Sort: SortBudget}, []string{"proj-2", "proj-1", "proj-3"}},
		{"deadline", Filter{Sort: SortDeadline}, []string{"proj-3", "proj-2", "proj-1"}},
		{"status", Filter{Status: model.ProjectStatusOpen}, []string{"proj-1"}},
		{"category", Filter{Category: "3d"}, []string{"proj-2"}},
		{"search description", Filter{Search: "hangzhou"}, []string{"proj-3"}},
		{"search tag", Filter{Search: "packag"}, []string{"proj-1"}},
		{"client", Filter{ClientID: "u-amy"}, []string{}},
		{"page", Filter{Sort: SortBudget, Limit: 1, Offset: 1}, []string{"proj-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, projectIDs(res.Items))
		})
	}
}

func TestCreateValidation(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, studio, CreateInput{Title: "Mascot", BudgetMin: 100, BudgetMax: 200, Deadline: time.Now().Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusOpen, p.Status)
	assert.Equal(t, "Nova Studio", p.ClientName)
	assert.Equal(t, []string{event.ProjectCreated}, rec.Keys())

	_, err = svc.Create(ctx, amy, CreateInput{Title: "Birthday card", BudgetMin: 10, BudgetMax: 20})
	require.NoError(t, err)

	_, err = svc.Create(ctx, studio, CreateInput{Title: "Bad", BudgetMin: 300, BudgetMax: 200})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.Create(ctx, studio, CreateInput{Title: "Bad", BudgetMin: -1, BudgetMax: 200})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.Create(ctx, studio, CreateInput{BudgetMax: 200})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestApplyAssignComplete(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	_, err := svc.Apply(ctx, amy, "proj-1")
	assert.ErrorIs(t, err, service.ErrForbidden)

	p, err := svc.Apply(ctx, zhou, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-lin", "u-zhou"}, p.Applicants)

	p, err = svc.Apply(ctx, zhou, "proj-1")
	require.NoError(t, err)
	assert.Len(t, p.Applicants, 2)
	assert.Equal(t, []string{event.ProjectApplied}, rec.Keys())

	_, err = svc.Apply(ctx, lin, "proj-2")
	assert.ErrorIs(t, err, service.ErrConflict)

	_, err = svc.Assign(ctx, lin, "proj-1", "u-lin")
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.Assign(ctx, studio, "proj-1", "u-chen")
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	p, err = svc.Assign(ctx, studio, "proj-1", "u-zhou")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusInProgress, p.Status)
	assert.Equal(t, "u-zhou", p.AssigneeID)
	assert.Equal(t, event.ProjectAssigned, rec.Keys()[1])

	_, err = svc.SetStatus(ctx, studio, "proj-1", model.ProjectStatusOpen)
	assert.ErrorIs(t, err, service.ErrConflict)

	p, err = svc.SetStatus(ctx, studio, "proj-1", model.ProjectStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusCompleted, p.Status)

	_, err = svc.SetStatus(ctx, admin, "proj-1", model.ProjectStatusCancelled)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{model.ProjectStatusOpen, model.ProjectStatusInProgress, true},
		{model.ProjectStatusOpen, model.ProjectStatusCancelled, true},
		{model.ProjectStatusOpen, model.ProjectStatusCompleted, false},
		{model.ProjectStatusInProgress, model.ProjectStatusCompleted, true},
		{model.ProjectStatusInProgress, model.ProjectStatusCancelled, true},
		{model.ProjectStatusCompleted, model.ProjectStatusCancelled, false},
		{model.ProjectStatusCancelled, model.ProjectStatusOpen, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	budgetMax := int64(100)
	_, err := svc.Update(ctx, studio, "proj-1", UpdateInput{BudgetMax: &budgetMax})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	title := "Tea gift box art"
	p, err := svc.Update(ctx, studio, "proj-1", UpdateInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, p.Title)

	assert.ErrorIs(t, svc.Delete(ctx, lin, "proj-2"), service.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, studio, "proj-2"))

	tasks, err := svc.ListTasks(ctx, "proj-2")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTasks(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	tasks, err := svc.ListTasks(ctx, "proj-2")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "task-1", tasks[0].ID)

	_, err = svc.CreateTask(ctx, lin, "proj-2", TaskInput{Title: "Sneak in"})
	assert.ErrorIs(t, err, service.ErrForbidden)

	task, err := svc.CreateTask(ctx, zhou, "proj-2", TaskInput{Title: "Export frames"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusTodo, task.Status)
	assert.Equal(t, "u-zhou", task.AssigneeID)

	_, err = svc.CreateTask(ctx, studio, "proj-2", TaskInput{Title: "x", Status: "blocked"})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	title := "Export final frames"
	task, err = svc.UpdateTask(ctx, studio, task.ID, TaskUpdate{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, rec.Keys())

	review := model.TaskStatusReview
	task, err = svc.UpdateTask(ctx, zhou, task.ID, TaskUpdate{Status: &review})
	require.NoError(t, err)
	assert.Equal(t, review, task.Status)
	assert.Equal(t, []string{event.TaskUpdated}, rec.Keys())

	require.NoError(t, svc.DeleteTask(ctx, studio, task.ID))
	_, err = svc.UpdateTask(ctx, studio, task.ID, TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, service.ErrNotFound)
}
