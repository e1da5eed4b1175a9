package authz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/config"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	store       *store.Store
	client      Actor
	otherClient Actor
	freelancer  Actor
	outsider    Actor
	admin       Actor
	project     *models.Project
	proposal    *models.Proposal
	contract    *models.Contract
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := store.New(db)
	ctx := context.Background()
	f := &fixture{
		store:       s,
		client:      Actor{ID: 1, Role: models.RoleClient},
		otherClient: Actor{ID: 2, Role: models.RoleClient},
		freelancer:  Actor{ID: 3, Role: models.RoleFreelancer},
		outsider:    Actor{ID: 4, Role: models.RoleFreelancer},
		admin:       Actor{ID: 5, Role: models.RoleAdmin},
	}
	f.project = &models.Project{
		ClientID: 1, Title: "Landing page", Description: "d",
		MinBudget: 10, MaxBudget: 20, Deadline: time.Now().Add(time.Hour),
		Skills: []string{"html"}, Status: models.ProjectOpen,
	}
	if err := s.Create(ctx, f.project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	f.proposal = &models.Proposal{ProjectID: f.project.ID, FreelancerID: 3, BidAmount: 15, Status: models.ProposalAccepted}
	if err := s.Create(ctx, f.proposal); err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	f.contract = &models.Contract{ProposalID: f.proposal.ID, Status: models.ContractPending}
	if err := s.Create(ctx, f.contract); err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return f
}

func TestAuthorize_RoleTable(t *testing.T) {
	f := setupFixture(t)
	a := New(f.store)
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    Actor
		action   Action
		resource uint
		want     apperr.Kind
	}{
		{"client creates project", f.client, ProjectCreate, 0, ""},
		{"admin creates project", f.admin, ProjectCreate, 0, ""},
		{"freelancer creates project", f.freelancer, ProjectCreate, 0, apperr.KindForbidden},
		{"owner changes project status", f.client, ProjectStatus, f.project.ID, ""},
		{"other client changes project status", f.otherClient, ProjectStatus, f.project.ID, apperr.KindForbidden},
		{"admin changes project status", f.admin, ProjectStatus, f.project.ID, ""},
		{"status of missing project", f.admin, ProjectStatus, 999, apperr.KindNotFound},
		{"freelancer proposes on open project", f.freelancer, ProposalCreate, f.project.ID, ""},
		{"client proposes", f.client, ProposalCreate, f.project.ID, apperr.KindForbidden},
		{"owner changes proposal status", f.client, ProposalStatus, f.proposal.ID, ""},
		{"freelancer changes proposal status", f.freelancer, ProposalStatus, f.proposal.ID, apperr.KindForbidden},
		{"other client changes proposal status", f.otherClient, ProposalStatus, f.proposal.ID, apperr.KindForbidden},
		{"proposal missing", f.client, ProposalStatus, 999, apperr.KindNotFound},
		{"system creates contract", System(), ContractCreate, f.proposal.ID, ""},
		{"proposal freelancer creates contract", f.freelancer, ContractCreate, f.proposal.ID, ""},
		{"other freelancer creates contract", f.outsider, ContractCreate, f.proposal.ID, apperr.KindForbidden},
		{"client creates contract", f.client, ContractCreate, f.proposal.ID, apperr.KindForbidden},
		{"client party updates contract", f.client, ContractUpdate, f.contract.ID, ""},
		{"freelancer party updates contract", f.freelancer, ContractUpdate, f.contract.ID, ""},
		{"outsider updates contract", f.outsider, ContractUpdate, f.contract.ID, apperr.KindForbidden},
		{"other client manages milestone", f.otherClient, MilestoneManage, f.contract.ID, apperr.KindForbidden},
		{"party manages milestone", f.freelancer, MilestoneManage, f.contract.ID, ""},
		{"missing contract", f.client, MilestoneManage, 999, apperr.KindNotFound},
		{"accepted freelancer manages files", f.freelancer, FileManage, f.project.ID, ""},
		{"outsider manages files", f.outsider, FileManage, f.project.ID, apperr.KindForbidden},
		{"owner manages files", f.client, FileManage, f.project.ID, ""},
		{"admin manages users", f.admin, UsersManage, 0, ""},
		{"client manages users", f.client, UsersManage, 0, apperr.KindForbidden},
		{"anonymous actor", Actor{}, ProjectCreate, 0, apperr.KindForbidden},
		{"system outside acceptance", System(), ProjectCreate, 0, apperr.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Authorize(ctx, tt.actor, tt.action, tt.resource)
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("Authorize() kind = %q (err %v), expected %q", got, err, tt.want)
			}
		})
	}
}

func TestAuthorize_ProposalCreateRequiresOpenProject(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	var p models.Project
	if err := f.store.Update(ctx, &p, f.project.ID, map[string]interface{}{"status": models.ProjectInProgress}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	err := New(f.store).Authorize(ctx, f.outsider, ProposalCreate, f.project.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("proposal on in-progress project = %v, expected forbidden", err)
	}
}

func TestAuthorize_ContractCreateRequiresAccepted(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	pending := &models.Proposal{ProjectID: f.project.ID, FreelancerID: 4, BidAmount: 12, Status: models.ProposalPending}
	if err := f.store.Create(ctx, pending); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := New(f.store).Authorize(ctx, System(), ContractCreate, pending.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("contract on pending proposal = %v, expected forbidden", err)
	}
}

func TestAuthorize_ContractDeletePolicies(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	tests := []struct {
		policy string
		actor  Actor
		want   apperr.Kind
	}{
		{config.ContractDeleteParties, f.client, ""},
		{config.ContractDeleteParties, f.outsider, apperr.KindForbidden},
		{config.ContractDeleteParties, f.admin, ""},
		{config.ContractDeleteAdmin, f.client, apperr.KindForbidden},
		{config.ContractDeleteAdmin, f.admin, ""},
		{config.ContractDeleteAny, f.outsider, ""},
		{config.ContractDeleteAny, f.otherClient, ""},
	}

	for _, tt := range tests {
		t.Run(tt.policy+"/"+string(tt.actor.Role), func(t *testing.T) {
			a := New(f.store, WithContractDeletePolicy(tt.policy))
			err := a.Authorize(ctx, tt.actor, ContractDelete, f.contract.ID)
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("policy %s: kind = %q (err %v), expected %q", tt.policy, got, err, tt.want)
			}
		})
	}

	err := New(f.store, WithContractDeletePolicy(config.ContractDeleteAny)).Authorize(ctx, f.client, ContractDelete, 999)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("delete of missing contract = %v, expected not found", err)
	}
}

func TestWithStore_DoesNotMutateOriginal(t *testing.T) {
	f := setupFixture(t)
	a := New(f.store, WithContractDeletePolicy(config.ContractDeleteAdmin))
	b := a.WithStore(store.New(f.store.DB()))

	if b == a {
		t.Fatal("WithStore should return a copy")
	}
	if b.ContractDeletePolicy() != config.ContractDeleteAdmin {
		t.Errorf("policy not carried over: %q", b.ContractDeletePolicy())
	}
	if a.store != f.store {
		t.Error("original authorizer store changed")
	}
}
