// Package project is the commission board: enterprise briefs, creator
// applications, assignment and the task board of a running project.
package project

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/rbac"
)

const (
	SortNewest   = "newest"
	SortBudget   = "budget"
	SortDeadline = "deadline"
)

type Filter struct {
	Status   string
	Category string
	Search   string
	ClientID string
	Sort     string
	Limit    int
	Offset   int
}

type ListResult struct {
	Items []model.Project `json:"items"`
	Total int             `json:"total"`
}

type CreateInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	BudgetMin   int64     `json:"budgetMin"`
	BudgetMax   int64     `json:"budgetMax"`
	Deadline    time.Time `json:"deadline"`
}

type UpdateInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	Tags        *[]string  `json:"tags"`
	BudgetMin   *int64     `json:"budgetMin"`
	BudgetMax   *int64     `json:"budgetMax"`
	Deadline    *time.Time `json:"deadline"`
}

type Service struct {
	projects  store.Table[model.Project]
	tasks     store.Table[model.Task]
	users     store.Table[model.User]
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(st *store.Store, publisher event.Publisher, logger *zap.Logger) *Service {
	return &Service{
		projects:  st.Projects,
		tasks:     st.Tasks,
		users:     st.Users,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (f Filter) Matches(p model.Project) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Category != "" && f.Category != model.CategoryAll && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.ClientID != "" && p.ClientID != f.ClientID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Description), q) {
			return true
		}
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	}
	return true
}

// Sort orders projects in place; ties fall back to newest first.
func Sort(items []model.Project, by string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch by {
		case SortBudget:
			if a.BudgetMax != b.BudgetMax {
				return a.BudgetMax > b.BudgetMax
			}
		case SortDeadline:
			if !a.Deadline.Equal(b.Deadline) {
				return a.Deadline.Before(b.Deadline)
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (s *Service) List(ctx context.Context, f Filter) (ListResult, error) {
	items, err := store.Filter(ctx, s.projects, f.Matches)
	if err != nil {
		return ListResult{}, err
	}
	Sort(items, f.Sort)
	return ListResult{Items: service.Paginate(items, f.Limit, f.Offset), Total: len(items)}, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Project, error) {
	return s.projects.Get(ctx, id)
}

func validateBudget(lo, hi int64) error {
	if lo < 0 || hi < 0 {
		return service.Invalid("budget must not be negative")
	}
	if lo > hi {
		return service.Invalid("budget minimum exceeds maximum")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor service.Actor, in CreateInput) (model.Project, error) {
	if err := actor.Require(rbac.PermissionCreateProject); err != nil {
		return model.Project{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Project{}, service.Invalid("title is required")
	}
	if err := validateBudget(in.BudgetMin, in.BudgetMax); err != nil {
		return model.Project{}, err
	}

	client, err := s.users.Get(ctx, actor.UserID)
	if err != nil {
		return model.Project{}, err
	}

	now := s.now().UTC()
	p := model.Project{
		ID:          service.NewID(),
		Title:       title,
		Description: in.Description,
		ClientID:    client.ID,
		ClientName:  client.Name,
		Category:    in.Category,
		Tags:        cleanTags(in.Tags),
		BudgetMin:   in.BudgetMin,
		BudgetMax:   in.BudgetMax,
		Deadline:    in.Deadline,
		Status:      model.ProjectStatusOpen,
		Applicants:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projects.Put(ctx, p); err != nil {
		return model.Project{}, err
	}

	s.publish(ctx, event.ProjectCreated, event.ProjectCreatedPayload{
		ProjectID:  p.ID,
		ClientID:   p.ClientID,
		Title:      p.Title,
		Category:   p.Category,
		OccurredAt: now,
	})
	s.logger.Info("Project created", zap.String("project_id", p.ID), zap.String("client_id", p.ClientID))
	return p, nil
}

func (s *Service) managed(ctx context.Context, actor service.Actor, id string) (model.Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	if !actor.CanManage(p.ClientID) {
		return model.Project{}, service.Forbidden("only the client can manage this project")
	}
	return p, nil
}

// modify applies fn to a project the actor manages, under the row lock.
func (s *Service) modify(ctx context.Context, actor service.Actor, id string, fn func(*model.Project) error) (model.Project, error) {
	return s.projects.Update(ctx, id, func(p *model.Project) error {
		if !actor.CanManage(p.ClientID) {
			return service.Forbidden("only the client can manage this project")
		}
		return fn(p)
	})
}

func (s *Service) Update(ctx context.Context, actor service.Actor, id string, in UpdateInput) (model.Project, error) {
	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if title == "" {
			return model.Project{}, service.Invalid("title is required")
		}
	}

	return s.modify(ctx, actor, id, func(p *model.Project) error {
		if in.Title != nil {
			p.Title = title
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Category != nil {
			p.Category = *in.Category
		}
		if in.Tags != nil {
			p.Tags = cleanTags(*in.Tags)
		}
		if in.BudgetMin != nil {
			p.BudgetMin = *in.BudgetMin
		}
		if in.BudgetMax != nil {
			p.BudgetMax = *in.BudgetMax
		}
		if in.Deadline != nil {
			p.Deadline = *in.Deadline
		}
		if err := validateBudget(p.BudgetMin, p.BudgetMax); err != nil {
			return err
		}
		p.UpdatedAt = s.now().UTC()
		return nil
	})
}

// Delete removes the project and its tasks.
func (s *Service) Delete(ctx context.Context, actor service.Actor, id string) error {
	if _, err := s.managed(ctx, actor, id); err != nil {
		return err
	}
	tasks, err := s.ListTasks(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.tasks.Delete(ctx, t.ID); err != nil {
			return err
		}
	}
	return s.projects.Delete(ctx, id)
}

// Apply records the creator's interest. Applying twice is a no-op.
func (s *Service) Apply(ctx context.Context, actor service.Actor, id string) (model.Project, error) {
	if err := actor.Require(rbac.PermissionApplyProject); err != nil {
		return model.Project{}, err
	}
	creator, err := s.users.Get(ctx, actor.UserID)
	if err != nil {
		return model.Project{}, err
	}

	var applied bool
	p, err := s.projects.Update(ctx, id, func(p *model.Project) error {
		applied = false
		if p.Status != model.ProjectStatusOpen {
			return service.Conflict("project is not open for applications")
		}
		if p.ClientID == actor.UserID {
			return service.Invalid("cannot apply to your own project")
		}
		if p.HasApplicant(actor.UserID) {
			return nil
		}
		p.Applicants = append(p.Applicants, actor.UserID)
		p.UpdatedAt = s.now().UTC()
		applied = true
		return nil
	})
	if err != nil || !applied {
		return p, err
	}

	s.publish(ctx, event.ProjectApplied, event.ProjectAppliedPayload{
		ProjectID:   p.ID,
		ClientID:    p.ClientID,
		Title:       p.Title,
		CreatorID:   creator.ID,
		CreatorName: creator.Name,
		OccurredAt:  p.UpdatedAt,
	})
	return p, nil
}

// Assign hands an open project to one of its applicants.
func (s *Service) Assign(ctx context.Context, actor service.Actor, id, creatorID string) (model.Project, error) {
	p, err := s.modify(ctx, actor, id, func(p *model.Project) error {
		if p.Status != model.ProjectStatusOpen {
			return service.Conflict("only open projects can be assigned")
		}
		if !p.HasApplicant(creatorID) {
			return service.Invalid("creator %q has not applied", creatorID)
		}
		p.AssigneeID = creatorID
		p.Status = model.ProjectStatusInProgress
		p.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return model.Project{}, err
	}

	s.publish(ctx, event.ProjectAssigned, event.ProjectAssignedPayload{
		ProjectID:  p.ID,
		ClientID:   p.ClientID,
		ClientName: p.ClientName,
		Title:      p.Title,
		CreatorID:  creatorID,
		OccurredAt: p.UpdatedAt,
	})
	return p, nil
}

var transitions = map[string][]string{
	model.ProjectStatusOpen:       {model.ProjectStatusInProgress, model.ProjectStatusCancelled},
	model.ProjectStatusInProgress: {model.ProjectStatusCompleted, model.ProjectStatusCancelled},
}

// CanTransition reports whether a project may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Service) SetStatus(ctx context.Context, actor service.Actor, id, status string) (model.Project, error) {
	var changed bool
	p, err := s.modify(ctx, actor, id, func(p *model.Project) error {
		changed = false
		if p.Status == status {
			return nil
		}
		if !CanTransition(p.Status, status) {
			return service.Conflict("cannot move project from %s to %s", p.Status, status)
		}
		if status == model.ProjectStatusInProgress && p.AssigneeID == "" {
			return service.Conflict("assign a creator before starting the project")
		}
		p.Status = status
		p.UpdatedAt = s.now().UTC()
		changed = true
		return nil
	})
	if err != nil {
		return model.Project{}, err
	}
	if changed {
		s.logger.Info("Project status changed", zap.String("project_id", id), zap.String("status", status))
	}
	return p, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, key string, payload any) {
	if err := s.publisher.PublishWithContext(ctx, key, payload); err != nil {
		s.logger.Error("Failed to publish event", zap.String("routing_key", key), zap.Error(err))
	}
}
