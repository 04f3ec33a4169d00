package service

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/approval-service/internal/domain"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

type fakeTemplateRepo struct {
	store     *memStore
	templates map[string]*domain.FormTemplate
}

func newFakeTemplateRepo(store *memStore) *fakeTemplateRepo {
	return &fakeTemplateRepo{store: store, templates: make(map[string]*domain.FormTemplate)}
}

func (r *fakeTemplateRepo) Create(_ context.Context, tpl *domain.FormTemplate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tpl.ID = r.store.nextID("tpl")
	clone := *tpl
	r.templates[tpl.ID] = &clone
	return nil
}

func (r *fakeTemplateRepo) Update(_ context.Context, tpl *domain.FormTemplate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.templates[tpl.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *tpl
	r.templates[tpl.ID] = &clone
	return nil
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id string) (*domain.FormTemplate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tpl, ok := r.templates[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *tpl
	return &clone, nil
}

func (r *fakeTemplateRepo) ListActive(_ context.Context) ([]domain.FormTemplate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []domain.FormTemplate
	for _, tpl := range r.templates {
		if tpl.IsActive {
			result = append(result, *tpl)
		}
	}
	return result, nil
}

type fakeDepartmentRepo struct {
	departments map[string]*domain.Department
}

func (r *fakeDepartmentRepo) Create(_ context.Context, dept *domain.Department) error {
	if r.departments == nil {
		r.departments = make(map[string]*domain.Department)
	}
	r.departments[dept.ID] = dept
	return nil
}

func (r *fakeDepartmentRepo) Update(_ context.Context, dept *domain.Department) error {
	if _, ok := r.departments[dept.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.departments[dept.ID] = dept
	return nil
}

func (r *fakeDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	dept, ok := r.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return dept, nil
}

func (r *fakeDepartmentRepo) ListActive(_ context.Context) ([]domain.Department, error) {
	var result []domain.Department
	for _, dept := range r.departments {
		if dept.IsActive {
			result = append(result, *dept)
		}
	}
	return result, nil
}

type templateFixture struct {
	store     *memStore
	templates *fakeTemplateRepo
	service   *TemplateService
}

func newTemplateFixture() *templateFixture {
	store := newMemStore()
	templates := newFakeTemplateRepo(store)
	departments := &fakeDepartmentRepo{departments: map[string]*domain.Department{
		"dept-fin": {ID: "dept-fin", Name: "Finance", IsActive: true},
	}}
	svc := NewTemplateService(TemplateDependencies{
		TemplateRepo:   templates,
		StepRepo:       &fakeStepRepo{store: store},
		DepartmentRepo: departments,
		TxManager:      fakeTxManager{},
	})
	return &templateFixture{store: store, templates: templates, service: svc}
}

func validTemplateInput() TemplateInput {
	deptID := "dept-fin"
	return TemplateInput{
		Name:     "purchase request",
		IsActive: true,
		Steps: []StepInput{
			{StepOrder: 1, StepName: "manager review", Policy: domain.StepPolicyAny},
			{StepOrder: 2, StepName: "finance review", DepartmentID: &deptID, Policy: domain.StepPolicyAny},
		},
	}
}

func TestCreateTemplate(t *testing.T) {
	t.Run("persists template with ordered steps", func(t *testing.T) {
		fx := newTemplateFixture()

		tpl, err := fx.service.CreateTemplate(context.Background(), validTemplateInput())
		require.NoError(t, err)
		require.NotEmpty(t, tpl.ID)
		require.Len(t, tpl.Steps, 2)
		assert.Equal(t, 1, tpl.Steps[0].StepOrder)
		assert.Equal(t, 1, tpl.Steps[0].Quorum, "quorum defaults to 1")

		loaded, err := fx.service.GetTemplate(context.Background(), tpl.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.Steps, 2)
	})

	t.Run("rejects invalid definitions", func(t *testing.T) {
		ghost := "dept-ghost"
		tests := []struct {
			name   string
			mutate func(*TemplateInput)
		}{
			{"empty name", func(in *TemplateInput) { in.Name = "  " }},
			{"no steps", func(in *TemplateInput) { in.Steps = nil }},
			{"non-positive step order", func(in *TemplateInput) { in.Steps[0].StepOrder = 0 }},
			{"duplicate step order", func(in *TemplateInput) { in.Steps[1].StepOrder = 1 }},
			{"blank step name", func(in *TemplateInput) { in.Steps[0].StepName = "" }},
			{"unknown policy", func(in *TemplateInput) { in.Steps[0].Policy = "SOMETIMES" }},
			{"quorum below one", func(in *TemplateInput) {
				in.Steps[0].Policy = domain.StepPolicyQuorum
				in.Steps[0].Quorum = 0
			}},
			{"unknown department", func(in *TemplateInput) { in.Steps[0].DepartmentID = &ghost }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fx := newTemplateFixture()
				input := validTemplateInput()
				tt.mutate(&input)

				_, err := fx.service.CreateTemplate(context.Background(), input)
				require.Error(t, err)
				assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
			})
		}
	})

	t.Run("accepts quorum policy with explicit threshold", func(t *testing.T) {
		fx := newTemplateFixture()
		input := validTemplateInput()
		input.Steps[0].Policy = domain.StepPolicyQuorum
		input.Steps[0].Quorum = 2

		tpl, err := fx.service.CreateTemplate(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, 2, tpl.Steps[0].Quorum)
	})
}

func TestUpdateTemplate(t *testing.T) {
	t.Run("replaces the step list while unused", func(t *testing.T) {
		fx := newTemplateFixture()
		tpl, err := fx.service.CreateTemplate(context.Background(), validTemplateInput())
		require.NoError(t, err)

		input := validTemplateInput()
		input.Name = "purchase request v2"
		input.Steps = []StepInput{{StepOrder: 1, StepName: "director review", Policy: domain.StepPolicyAll}}

		updated, err := fx.service.UpdateTemplate(context.Background(), tpl.ID, input)
		require.NoError(t, err)
		assert.Equal(t, "purchase request v2", updated.Name)
		require.Len(t, updated.Steps, 1)
		assert.Equal(t, domain.StepPolicyAll, updated.Steps[0].Policy)
	})

	t.Run("refuses once a ticket references the template", func(t *testing.T) {
		fx := newTemplateFixture()
		tpl, err := fx.service.CreateTemplate(context.Background(), validTemplateInput())
		require.NoError(t, err)

		fx.store.addTicket("ticket-1", tpl.ID)
		repo := &fakeApprovalRepo{store: fx.store}
		inst := domain.ApprovalInstance{
			TicketID:       "ticket-1",
			WorkflowStepID: tpl.Steps[0].ID,
			Action:         domain.ActionPending,
		}
		require.NoError(t, repo.Create(context.Background(), &inst))

		_, err = fx.service.UpdateTemplate(context.Background(), tpl.ID, validTemplateInput())
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})

	t.Run("unknown template reports not found", func(t *testing.T) {
		fx := newTemplateFixture()
		_, err := fx.service.UpdateTemplate(context.Background(), "ghost", validTemplateInput())
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
	})
}

func TestDeactivateTemplate(t *testing.T) {
	fx := newTemplateFixture()
	tpl, err := fx.service.CreateTemplate(context.Background(), validTemplateInput())
	require.NoError(t, err)

	require.NoError(t, fx.service.DeactivateTemplate(context.Background(), tpl.ID))

	loaded, err := fx.service.GetTemplate(context.Background(), tpl.ID)
	require.NoError(t, err)
	assert.False(t, loaded.IsActive)

	// deactivating twice is a no-op
	require.NoError(t, fx.service.DeactivateTemplate(context.Background(), tpl.ID))

	active, err := fx.service.ListActiveTemplates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}
