package plan

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/delegate/internal/events"
	"github.com/ShayCichocki/delegate/pkg/models"
)

func draftABC() models.PlanDraft {
	return models.PlanDraft{
		Objective:   "ship the feature",
		Assumptions: []string{"tests are green"},
		Tasks: []models.Task{
			{ID: "A", Goal: "write parser"},
			{ID: "B", Goal: "write docs"},
			{ID: "C", Goal: "integrate", Dependencies: []string{"A", "B"}},
		},
	}
}

type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Emit(e events.Event) { r.events = append(r.events, e) }

func TestSubmit_StoresNormalizedPlan(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(4, WithPublisher(pub))

	id, err := s.Submit(draftABC())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id == "" {
		t.Fatal("Submit returned empty id")
	}

	p, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want global cap 4", p.Concurrency)
	}
	if p.Tasks[0].Mode != models.ModeNonBlocking {
		t.Errorf("default mode = %q, want nonblocking", p.Tasks[0].Mode)
	}
	if len(p.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", p.Warnings)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != events.EventPlanProposed || ev.PlanID != id {
		t.Errorf("event = %s/%s, want plan_proposed/%s", ev.Type, ev.PlanID, id)
	}
	if ev.Plan == nil || len(ev.Plan.Tasks) != 3 {
		t.Errorf("event plan = %+v, want normalized plan with 3 tasks", ev.Plan)
	}
}

func TestSubmit_ResubmissionGetsNewID(t *testing.T) {
	s := NewStore(4)
	id1, err := s.Submit(draftABC())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	id2, err := s.Submit(draftABC())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id1 == id2 {
		t.Errorf("resubmission reused id %s", id1)
	}
	if got := len(s.List()); got != 2 {
		t.Errorf("List() returned %d plans, want 2", got)
	}
}

func TestSubmit_ClampsConcurrencyWithWarning(t *testing.T) {
	s := NewStore(2)
	d := draftABC()
	d.Concurrency = 8

	id, err := s.Submit(d)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	p, _ := s.Get(id)
	if p.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want clamped 2", p.Concurrency)
	}
	if len(p.Warnings) != 1 || !strings.Contains(p.Warnings[0], "clamped") {
		t.Errorf("Warnings = %v, want one clamp warning", p.Warnings)
	}
}

func TestSubmit_RejectsNonPositiveConcurrency(t *testing.T) {
	s := NewStore(2)
	d := draftABC()
	d.Concurrency = -1

	_, err := s.Submit(d)
	if !IsKind(err, KindInvalidConcurrency) {
		t.Errorf("Submit error = %v, want invalid_concurrency", err)
	}
}

func TestSubmit_RejectsCycleWithoutStoring(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(4, WithPublisher(pub))

	_, err := s.Submit(models.PlanDraft{Tasks: []models.Task{
		{ID: "A", Goal: "a", Dependencies: []string{"B"}},
		{ID: "B", Goal: "b", Dependencies: []string{"A"}},
	}})

	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Submit error = %v, want ErrValidation", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Kind != KindCyclicDependency {
		t.Fatalf("Submit error = %v, want cyclic_dependency", err)
	}
	if !reflect.DeepEqual(ve.Cycle, []string{"A", "B", "A"}) {
		t.Errorf("Cycle = %v, want [A B A]", ve.Cycle)
	}
	if len(s.List()) != 0 {
		t.Error("rejected plan was stored")
	}
	if len(pub.events) != 0 {
		t.Error("rejected plan emitted an event")
	}
}

func TestSubmit_ValidationOrder(t *testing.T) {
	tests := []struct {
		name  string
		tasks []models.Task
		want  Kind
	}{
		{
			name: "unknown before cycle",
			tasks: []models.Task{
				{ID: "A", Goal: "a", Dependencies: []string{"B"}},
				{ID: "B", Goal: "b", Dependencies: []string{"A", "Z"}},
			},
			want: KindUnknownDependency,
		},
		{
			name: "cycle before duplicate",
			tasks: []models.Task{
				{ID: "A", Goal: "a", Dependencies: []string{"B"}},
				{ID: "B", Goal: "b", Dependencies: []string{"A"}},
				{ID: "B", Goal: "again"},
			},
			want: KindCyclicDependency,
		},
		{
			name: "duplicate",
			tasks: []models.Task{
				{ID: "A", Goal: "a"},
				{ID: "A", Goal: "again"},
			},
			want: KindDuplicateTaskID,
		},
		{
			name:  "missing goal",
			tasks: []models.Task{{ID: "A"}},
			want:  KindMissingGoal,
		},
		{
			name:  "missing id",
			tasks: []models.Task{{Goal: "a"}},
			want:  KindMissingTaskID,
		},
		{
			name:  "bad mode",
			tasks: []models.Task{{ID: "A", Goal: "a", Mode: "async"}},
			want:  KindInvalidMode,
		},
		{
			name:  "empty",
			tasks: nil,
			want:  KindEmptyPlan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(4).Submit(models.PlanDraft{Tasks: tt.tasks})
			if !IsKind(err, tt.want) {
				t.Errorf("Submit error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestGet_ReturnsIndependentCopy(t *testing.T) {
	s := NewStore(4)
	id, err := s.Submit(draftABC())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	p, _ := s.Get(id)
	p.Tasks[0].Goal = "tampered"
	p.Tasks[2].Dependencies[0] = "Z"

	again, _ := s.Get(id)
	if again.Tasks[0].Goal != "write parser" {
		t.Errorf("stored goal mutated to %q", again.Tasks[0].Goal)
	}
	if again.Tasks[2].Dependencies[0] != "A" {
		t.Errorf("stored dependency mutated to %q", again.Tasks[2].Dependencies[0])
	}
}

func TestSubmit_DraftMutationDoesNotLeak(t *testing.T) {
	s := NewStore(4)
	d := draftABC()
	id, err := s.Submit(d)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	d.Tasks[2].Dependencies[0] = "Z"

	p, _ := s.Get(id)
	if p.Tasks[2].Dependencies[0] != "A" {
		t.Errorf("stored plan shares memory with draft: %v", p.Tasks[2].Dependencies)
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := NewStore(4).Get("missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

type memPersister struct {
	plans map[string]*models.Plan
}

func (m *memPersister) SavePlan(p *models.Plan) error {
	m.plans[p.ID] = p.Clone()
	return nil
}

func (m *memPersister) GetPlan(id string) (*models.Plan, error) {
	return m.plans[id], nil
}

func TestGet_FallsBackToPersister(t *testing.T) {
	persist := &memPersister{plans: make(map[string]*models.Plan)}
	id, err := NewStore(4, WithPersister(persist)).Submit(draftABC())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	fresh := NewStore(4, WithPersister(persist))
	p, err := fresh.Get(id)
	if err != nil {
		t.Fatalf("Get from persister failed: %v", err)
	}
	if p.Objective != "ship the feature" {
		t.Errorf("Objective = %q, want %q", p.Objective, "ship the feature")
	}
}
