package seed

import (
	"context"
	"fmt"
	"testing"

	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/internal/workflow"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEngine(t *testing.T) (*workflow.Engine, *gorm.DB) {
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
	return workflow.New(s, authz.New(s)), db
}

func count(t *testing.T, db *gorm.DB, model interface{}, where ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRun(t *testing.T) {
	engine, db := setupEngine(t)
	opts := Options{
		Clients:             2,
		Freelancers:         3,
		ProjectsPerClient:   2,
		ProposalsPerProject: 5,
		AcceptRatio:         1,
		Seed:                42,
	}

	sum, err := NewSeeder(engine, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Users != 5 || sum.Projects != 4 {
		t.Errorf("summary = %+v", sum)
	}
	// bids are capped by the number of freelancers
	if sum.Proposals != 12 {
		t.Errorf("Proposals = %d, expected 12", sum.Proposals)
	}
	if sum.Contracts != 4 {
		t.Errorf("Contracts = %d, expected 4", sum.Contracts)
	}

	if n := count(t, db, &models.User{}); n != 5 {
		t.Errorf("users = %d, expected 5", n)
	}
	if n := count(t, db, &models.Contract{}); n != int64(sum.Contracts) {
		t.Errorf("contracts = %d, expected %d", n, sum.Contracts)
	}
	if n := count(t, db, &models.Milestone{}); n != int64(sum.Milestones) {
		t.Errorf("milestones = %d, expected %d", n, sum.Milestones)
	}
	if n := count(t, db, &models.Project{}, "status = ?", models.ProjectInProgress); n != 4 {
		t.Errorf("in-progress projects = %d, expected 4", n)
	}
	if n := count(t, db, &models.Proposal{}, "status = ?", models.ProposalAccepted); n != 4 {
		t.Errorf("accepted proposals = %d, expected 4", n)
	}

	if _, err := engine.Authenticate(context.Background(), firstEmail(t, db), DefaultPassword); err != nil {
		t.Errorf("seeded user cannot log in: %v", err)
	}
}

func TestRun_NoAccepts(t *testing.T) {
	engine, db := setupEngine(t)
	opts := Options{Clients: 1, Freelancers: 2, ProjectsPerClient: 2, ProposalsPerProject: 1, AcceptRatio: 0, Seed: 7}

	sum, err := NewSeeder(engine, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Contracts != 0 || sum.Milestones != 0 {
		t.Errorf("summary = %+v, expected no contracts", sum)
	}
	if n := count(t, db, &models.Proposal{}, "status = ?", models.ProposalPending); n != 2 {
		t.Errorf("pending proposals = %d, expected 2", n)
	}
}

func TestPick(t *testing.T) {
	s := NewSeeder(nil, Options{Seed: 1})
	got := s.pick(5, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, expected 3", len(got))
	}
	seen := map[int]bool{}
	for _, i := range got {
		if i < 0 || i >= 5 || seen[i] {
			t.Errorf("bad index set %v", got)
		}
		seen[i] = true
	}
	if n := len(s.pick(2, 10)); n != 2 {
		t.Errorf("len = %d, expected 2", n)
	}
}

func firstEmail(t *testing.T, db *gorm.DB) string {
	t.Helper()
	var u models.User
	if err := db.Order("id").First(&u).Error; err != nil {
		t.Fatalf("first user: %v", err)
	}
	return u.Email
}
