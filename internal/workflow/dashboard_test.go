package workflow

import (
	"testing"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/models"
)

func TestDashboard(t *testing.T) {
	f := setup(t)
	client, freelancer, project, contract := f.contracted()
	if _, err := f.engine.CreateMilestone(f.ctx, client, contract.ID, CreateMilestoneInput{Description: "Kickoff"}); err != nil {
		t.Fatalf("CreateMilestone: %v", err)
	}
	if _, err := f.engine.UploadFile(f.ctx, client, project.ID, nil, upload("brief.txt", "brief")); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	open := f.project(client)
	bidder := f.actor(models.RoleFreelancer)
	f.proposal(bidder, open.ID, 150)

	tests := []struct {
		name       string
		actor      authz.Actor
		projects   map[string]int64
		proposals  map[string]int64
		contracts  map[string]int64
		milestones map[string]int64
		files      int64
	}{
		{
			name:       "client",
			actor:      client,
			projects:   map[string]int64{"IN_PROGRESS": 1, "OPEN": 1},
			proposals:  map[string]int64{"ACCEPTED": 1, "PENDING": 1},
			contracts:  map[string]int64{"PENDING": 1},
			milestones: map[string]int64{"PENDING": 1},
			files:      1,
		},
		{
			name:       "awarded freelancer",
			actor:      freelancer,
			projects:   map[string]int64{"IN_PROGRESS": 1},
			proposals:  map[string]int64{"ACCEPTED": 1},
			contracts:  map[string]int64{"PENDING": 1},
			milestones: map[string]int64{"PENDING": 1},
			files:      1,
		},
		{
			name:       "pending bidder",
			actor:      bidder,
			projects:   map[string]int64{},
			proposals:  map[string]int64{"PENDING": 1},
			contracts:  map[string]int64{},
			milestones: map[string]int64{},
		},
		{
			name:       "outsider",
			actor:      f.actor(models.RoleClient),
			projects:   map[string]int64{},
			proposals:  map[string]int64{},
			contracts:  map[string]int64{},
			milestones: map[string]int64{},
		},
		{
			name:       "admin",
			actor:      f.actor(models.RoleAdmin),
			projects:   map[string]int64{"IN_PROGRESS": 1, "OPEN": 1},
			proposals:  map[string]int64{"ACCEPTED": 1, "PENDING": 1},
			contracts:  map[string]int64{"PENDING": 1},
			milestones: map[string]int64{"PENDING": 1},
			files:      1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := f.engine.Dashboard(f.ctx, tt.actor)
			if err != nil {
				t.Fatalf("Dashboard: %v", err)
			}
			expectCounts(t, "projects", d.Projects, tt.projects)
			expectCounts(t, "proposals", d.Proposals, tt.proposals)
			expectCounts(t, "contracts", d.Contracts, tt.contracts)
			expectCounts(t, "milestones", d.Milestones, tt.milestones)
			if d.Files != tt.files {
				t.Errorf("files = %d, expected %d", d.Files, tt.files)
			}
		})
	}

	_, err := f.engine.Dashboard(f.ctx, authz.Actor{})
	expectKind(t, err, apperr.KindForbidden)
}

func expectCounts(t *testing.T, what string, got, expected map[string]int64) {
	t.Helper()
	if len(got) != len(expected) {
		t.Errorf("%s = %v, expected %v", what, got, expected)
		return
	}
	for k, v := range expected {
		if got[k] != v {
			t.Errorf("%s[%s] = %d, expected %d", what, k, got[k], v)
		}
	}
}
