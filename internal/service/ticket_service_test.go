package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/approval-service/internal/domain"
	apperrors "github.com/spec-kit/approval-service/pkg/util"
)

type ticketFixture struct {
	store     *memStore
	templates *fakeTemplateRepo
	service   *TicketService
	tpl       *domain.FormTemplate
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	store := newMemStore()
	templates := newFakeTemplateRepo(store)
	departments := &fakeDepartmentRepo{departments: map[string]*domain.Department{
		"dept-1": {ID: "dept-1", Name: "IT", IsActive: true},
		"dept-2": {ID: "dept-2", Name: "Archive", IsActive: false},
	}}
	store.addUser("requester", domain.RoleEmployee, nil)

	templateService := NewTemplateService(TemplateDependencies{
		TemplateRepo:   templates,
		StepRepo:       &fakeStepRepo{store: store},
		DepartmentRepo: departments,
		TxManager:      fakeTxManager{},
	})
	tpl, err := templateService.CreateTemplate(context.Background(), TemplateInput{
		Name:     "access request",
		IsActive: true,
		Steps: []StepInput{
			{StepOrder: 1, StepName: "manager review", Policy: domain.StepPolicyAny},
			{StepOrder: 2, StepName: "security review", Policy: domain.StepPolicyAny},
		},
	})
	require.NoError(t, err)

	engine := newTestEngine(store)
	svc := NewTicketService(TicketDependencies{
		TicketRepo:     &fakeTicketRepo{store: store},
		TemplateRepo:   templates,
		StepRepo:       &fakeStepRepo{store: store},
		DepartmentRepo: departments,
		ApprovalRepo:   &fakeApprovalRepo{store: store},
		HistoryRepo:    &fakeHistoryRepo{store: store},
		Engine:         engine,
		TxManager:      fakeTxManager{},
	})
	return &ticketFixture{store: store, templates: templates, service: svc, tpl: tpl}
}

func (fx *ticketFixture) createInput() TicketCreateInput {
	return TicketCreateInput{
		FormTemplateID: fx.tpl.ID,
		DepartmentID:   "dept-1",
		Title:          "vpn access",
		Description:    "need access to staging",
	}
}

func TestCreateTicket(t *testing.T) {
	t.Run("creates ticket with instantiated workflow", func(t *testing.T) {
		fx := newTicketFixture(t)

		detail, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
		require.NoError(t, err)
		require.NotNil(t, detail.Ticket)
		assert.True(t, strings.HasPrefix(detail.Ticket.TicketCode, "REQ-"))
		assert.Equal(t, domain.TicketStatusPending, detail.Ticket.Status)
		require.Len(t, detail.Approvals, 2)
		require.NotNil(t, detail.NextPending)
		assert.Equal(t, 1, detail.NextPending.StepOrder)
	})

	t.Run("binds explicit approvers from the payload", func(t *testing.T) {
		fx := newTicketFixture(t)
		alice := fx.store.addUser("alice", domain.RoleApprover, nil)
		input := fx.createInput()
		input.Approvers = map[int]string{1: alice.ID}

		detail, err := fx.service.CreateTicket(context.Background(), "requester", input)
		require.NoError(t, err)
		require.NotNil(t, detail.Approvals[0].ApproverID)
		assert.Equal(t, alice.ID, *detail.Approvals[0].ApproverID)
		assert.Nil(t, detail.Approvals[1].ApproverID)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		tests := []struct {
			name     string
			mutate   func(*TicketCreateInput)
			wantCode string
		}{
			{"blank title", func(in *TicketCreateInput) { in.Title = "  " }, "VALIDATION_FAILED"},
			{"unknown template", func(in *TicketCreateInput) { in.FormTemplateID = "ghost" }, "NOT_FOUND"},
			{"unknown department", func(in *TicketCreateInput) { in.DepartmentID = "ghost" }, "NOT_FOUND"},
			{"inactive department", func(in *TicketCreateInput) { in.DepartmentID = "dept-2" }, "VALIDATION_FAILED"},
			{"unknown approver", func(in *TicketCreateInput) { in.Approvers = map[int]string{1: "ghost"} }, "UNKNOWN_APPROVER"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fx := newTicketFixture(t)
				input := fx.createInput()
				tt.mutate(&input)

				_, err := fx.service.CreateTicket(context.Background(), "requester", input)
				require.Error(t, err)
				assert.True(t, apperrors.IsCode(err, tt.wantCode))
			})
		}
	})

	t.Run("refuses an inactive template", func(t *testing.T) {
		fx := newTicketFixture(t)
		fx.tpl.IsActive = false
		require.NoError(t, fx.templates.Update(context.Background(), fx.tpl))

		_, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})
}

func TestGetTicketForUser(t *testing.T) {
	fx := newTicketFixture(t)
	detail, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
	require.NoError(t, err)
	ticketID := detail.Ticket.ID

	requester := &domain.User{ID: "requester", Role: domain.RoleEmployee}
	stranger := &domain.User{ID: "stranger", Role: domain.RoleEmployee}
	admin := &domain.User{ID: "boss", Role: domain.RoleAdmin}

	got, err := fx.service.GetTicketForUser(context.Background(), requester, ticketID)
	require.NoError(t, err)
	assert.Len(t, got.Approvals, 2)

	_, err = fx.service.GetTicketForUser(context.Background(), stranger, ticketID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))

	_, err = fx.service.GetTicketForUser(context.Background(), admin, ticketID)
	require.NoError(t, err)

	byCode, err := fx.service.GetTicketByCode(context.Background(), requester, detail.Ticket.TicketCode)
	require.NoError(t, err)
	assert.Equal(t, ticketID, byCode.Ticket.ID)
}

func TestUpdateContent(t *testing.T) {
	t.Run("requester edits an unstarted ticket", func(t *testing.T) {
		fx := newTicketFixture(t)
		detail, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
		require.NoError(t, err)

		updated, err := fx.service.UpdateContent(context.Background(), "requester", detail.Ticket.ID, TicketUpdateInput{
			Title:       "vpn access (prod)",
			Description: "need access to prod too",
		})
		require.NoError(t, err)
		assert.Equal(t, "vpn access (prod)", updated.Title)

		requester := &domain.User{ID: "requester", Role: domain.RoleEmployee}
		entries, err := fx.service.ListHistory(context.Background(), requester, detail.Ticket.ID, 50, 0)
		require.NoError(t, err)
		var contentEdits int
		for _, entry := range entries {
			if entry.ChangeType == domain.ChangeTypeContent {
				contentEdits++
			}
		}
		assert.Equal(t, 1, contentEdits)
	})

	t.Run("only the requester may edit", func(t *testing.T) {
		fx := newTicketFixture(t)
		detail, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
		require.NoError(t, err)

		_, err = fx.service.UpdateContent(context.Background(), "stranger", detail.Ticket.ID, TicketUpdateInput{Title: "hijack"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))
	})

	t.Run("edits freeze once processing starts", func(t *testing.T) {
		fx := newTicketFixture(t)
		detail, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
		require.NoError(t, err)

		fx.store.addUser("carol", domain.RoleApprover, nil)
		engine := newTestEngine(fx.store)
		require.NoError(t, engine.Approve(context.Background(), detail.Approvals[0].ID, "", "carol"))

		_, err = fx.service.UpdateContent(context.Background(), "requester", detail.Ticket.ID, TicketUpdateInput{Title: "late edit"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})
}

func TestCancelTicket(t *testing.T) {
	t.Run("cancels and closes every pending instance", func(t *testing.T) {
		fx := newTicketFixture(t)
		detail, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
		require.NoError(t, err)

		ticket, err := fx.service.CancelTicket(context.Background(), "requester", detail.Ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusCancelled, ticket.Status)

		repo := &fakeApprovalRepo{store: fx.store}
		trail, err := repo.ListByTicket(context.Background(), ticket.ID)
		require.NoError(t, err)
		for _, inst := range trail {
			assert.Equal(t, domain.ActionReject, inst.Action)
			assert.Equal(t, cancelComment, inst.Comments)
			assert.Nil(t, inst.ApproverID)
		}
	})

	t.Run("cancellation is refused once in progress", func(t *testing.T) {
		fx := newTicketFixture(t)
		detail, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
		require.NoError(t, err)

		fx.store.addUser("carol", domain.RoleApprover, nil)
		engine := newTestEngine(fx.store)
		require.NoError(t, engine.Approve(context.Background(), detail.Approvals[0].ID, "", "carol"))

		_, err = fx.service.CancelTicket(context.Background(), "requester", detail.Ticket.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})
}

func TestListUserTickets(t *testing.T) {
	fx := newTicketFixture(t)
	_, err := fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
	require.NoError(t, err)
	_, err = fx.service.CreateTicket(context.Background(), "requester", fx.createInput())
	require.NoError(t, err)

	mine, err := fx.service.ListUserTickets(context.Background(), "requester", TicketUserFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	other, err := fx.service.ListUserTickets(context.Background(), "someone-else", TicketUserFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}
