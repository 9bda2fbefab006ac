// Package plan holds validated task graphs keyed by plan ID.
package plan

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/pkg/models"
)

// Persister stores plans beyond the life of the process.
type Persister interface {
	SavePlan(p *models.Plan) error
	// GetPlan returns nil, nil when the plan does not exist.
	GetPlan(id string) (*models.Plan, error)
}

// Store validates and holds immutable plans.
type Store struct {
	mu        sync.RWMutex
	plans     map[string]*models.Plan
	globalCap int

	events    events.Publisher
	persister Persister
	debugLog  func(format string, args ...interface{})
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sets where PlanProposed events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.events = p }
}

// WithPersister stores every accepted plan and falls back to it on lookup.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(s *Store) {
		if fn != nil {
			s.debugLog = fn
		}
	}
}

// NewStore creates a plan store whose plans may not exceed globalCap
// concurrent tasks.
func NewStore(globalCap int, opts ...Option) *Store {
	s := &Store{
		plans:     make(map[string]*models.Plan),
		globalCap: globalCap,
		events:    events.Discard,
		debugLog:  func(format string, args ...interface{}) {},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates a draft and stores an immutable copy under a new ID.
func (s *Store) Submit(draft models.PlanDraft) (string, error) {
	p, err := Validate(draft, s.globalCap)
	if err != nil {
		s.debugLog("[plan.Submit] rejected: %v", err)
		return "", err
	}

	p.ID = uuid.New().String()
	p.CreatedAt = s.now()
	for _, w := range p.Warnings {
		log.Printf("[plan] WARNING: plan %s: %s", p.ID, w)
	}

	if s.persister != nil {
		if err := s.persister.SavePlan(p); err != nil {
			return "", fmt.Errorf("persist plan: %w", err)
		}
	}

	s.mu.Lock()
	s.plans[p.ID] = p
	s.mu.Unlock()

	s.debugLog("[plan.Submit] stored plan %s with %d tasks, concurrency=%d", p.ID, len(p.Tasks), p.Concurrency)
	s.events.Emit(events.Event{
		Type:    events.EventPlanProposed,
		PlanID:  p.ID,
		Message: fmt.Sprintf("Plan %s proposed with %d tasks", p.ID, len(p.Tasks)),
		Plan:    p.Clone(),
	})
	return p.ID, nil
}

// Get returns a copy of the stored plan.
func (s *Store) Get(id string) (*models.Plan, error) {
	s.mu.RLock()
	p, ok := s.plans[id]
	s.mu.RUnlock()
	if ok {
		return p.Clone(), nil
	}

	if s.persister != nil {
		stored, err := s.persister.GetPlan(id)
		if err != nil {
			return nil, fmt.Errorf("load plan %s: %w", id, err)
		}
		if stored != nil {
			s.mu.Lock()
			s.plans[id] = stored
			s.mu.Unlock()
			return stored.Clone(), nil
		}
	}
	return nil, fmt.Errorf("plan %s: %w", id, models.ErrNotFound)
}

// List returns the plans held in memory, newest first.
func (s *Store) List() []models.PlanSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PlanSummary, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, models.PlanSummary{
			ID:          p.ID,
			Objective:   p.Objective,
			TaskCount:   len(p.Tasks),
			Concurrency: p.Concurrency,
			CreatedAt:   p.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GlobalCap returns the cap plans are clamped to.
func (s *Store) GlobalCap() int {
	return s.globalCap
}
