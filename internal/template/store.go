package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// ErrNotFound is returned when no template matches a lookup.
var ErrNotFound = errors.New("template not found")

// Repository defines the data access contract for templates.
type Repository interface {
	// GetActive returns the active template with the id for the channel.
	// Returns ErrNotFound when the template is missing or inactive.
	GetActive(ctx context.Context, id string, channel domain.Channel) (*domain.NotificationTemplate, error)

	// Get returns one template regardless of active state.
	Get(ctx context.Context, id string) (*domain.NotificationTemplate, error)

	// Create inserts a template.
	Create(ctx context.Context, t *domain.NotificationTemplate) error

	// Update replaces a template's mutable fields. Returns ErrNotFound.
	Update(ctx context.Context, t *domain.NotificationTemplate) error

	// Deactivate flips is_active off. Templates are never deleted; queue
	// items may still reference them.
	Deactivate(ctx context.Context, id string) error

	// List returns all templates.
	List(ctx context.Context) ([]domain.NotificationTemplate, error)
}

// Store layers template management on a repository: syntax validation before
// save and compiled-cache invalidation after.
type Store struct {
	repo     Repository
	renderer *Renderer
}

// NewStore creates a template store.
func NewStore(repo Repository, renderer *Renderer) *Store {
	return &Store{repo: repo, renderer: renderer}
}

// GetActive implements the dispatcher's template lookup.
func (s *Store) GetActive(ctx context.Context, id string, channel domain.Channel) (*domain.NotificationTemplate, error) {
	return s.repo.GetActive(ctx, id, channel)
}

// Get returns one template.
func (s *Store) Get(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	return s.repo.Get(ctx, id)
}

// List returns all templates.
func (s *Store) List(ctx context.Context) ([]domain.NotificationTemplate, error) {
	return s.repo.List(ctx)
}

// Create validates syntax and inserts the template.
func (s *Store) Create(ctx context.Context, t *domain.NotificationTemplate) error {
	if err := s.validate(t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.IsActive = true
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	return s.repo.Create(ctx, t)
}

// Update validates syntax, saves, and drops the stale compiled entries.
func (s *Store) Update(ctx context.Context, t *domain.NotificationTemplate) error {
	if err := s.validate(t); err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return err
	}
	s.renderer.ClearTemplate(t.ID)
	return nil
}

// Deactivate retires a template without deleting it.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.renderer.ClearTemplate(id)
	return nil
}

func (s *Store) validate(t *domain.NotificationTemplate) error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if !t.Channel.Valid() {
		return fmt.Errorf("unknown channel %q", t.Channel)
	}
	if t.ContentText == "" {
		return fmt.Errorf("text content is required")
	}
	for part, src := range map[string]string{
		"subject": t.Subject,
		"text":    t.ContentText,
		"html":    t.ContentHTML,
	} {
		if src == "" {
			continue
		}
		if err := s.renderer.Parse(src); err != nil {
			return fmt.Errorf("invalid %s template: %w", part, err)
		}
	}
	return nil
}
