// Package seed fills a database with demo marketplace data by driving the
// workflow engine, so seeded rows carry the same audit trail and rules
// as real traffic. Development use only.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/logger"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

var skillPool = []string{
	"go", "react", "typescript", "postgres", "kubernetes", "figma",
	"copywriting", "seo", "python", "swift", "terraform", "illustration",
}

type Options struct {
	Clients           int
	Freelancers       int
	ProjectsPerClient int
	// ProposalsPerProject is capped by the number of freelancers.
	ProposalsPerProject int
	// AcceptRatio is the share of projects whose first proposal is accepted.
	AcceptRatio float64
	Seed        int64
}

func DefaultOptions() Options {
	return Options{
		Clients:             5,
		Freelancers:         10,
		ProjectsPerClient:   3,
		ProposalsPerProject: 4,
		AcceptRatio:         0.5,
		Seed:                time.Now().UnixNano(),
	}
}

// Summary counts what Run created.
type Summary struct {
	Users      int
	Projects   int
	Proposals  int
	Contracts  int
	Milestones int
}

type Seeder struct {
	engine *workflow.Engine
	faker  *gofakeit.Faker
	opts   Options
}

func NewSeeder(engine *workflow.Engine, opts Options) *Seeder {
	return &Seeder{engine: engine, faker: gofakeit.New(opts.Seed), opts: opts}
}

func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}

	clients, err := s.users(ctx, models.RoleClient, s.opts.Clients)
	if err != nil {
		return sum, err
	}
	freelancers, err := s.users(ctx, models.RoleFreelancer, s.opts.Freelancers)
	if err != nil {
		return sum, err
	}
	sum.Users = len(clients) + len(freelancers)

	bids := s.opts.ProposalsPerProject
	if bids > len(freelancers) {
		bids = len(freelancers)
	}

	for _, client := range clients {
		for i := 0; i < s.opts.ProjectsPerClient; i++ {
			project, err := s.engine.CreateProject(ctx, client, s.project())
			if err != nil {
				return sum, fmt.Errorf("create project: %w", err)
			}
			sum.Projects++

			var first *models.Proposal
			for _, j := range s.pick(len(freelancers), bids) {
				p, err := s.engine.SubmitProposal(ctx, freelancers[j], project.ID, workflow.SubmitProposalInput{
					BidAmount:     float64(s.faker.Number(int(project.MinBudget), int(project.MaxBudget))),
					ProposalText:  s.faker.Paragraph(1, 3, 12, " "),
					EstimatedDays: s.faker.Number(3, 60),
				})
				if err != nil {
					return sum, fmt.Errorf("submit proposal: %w", err)
				}
				sum.Proposals++
				if first == nil {
					first = p
				}
			}

			if first == nil || s.faker.Float64Range(0, 1) >= s.opts.AcceptRatio {
				continue
			}
			result, err := s.engine.AcceptProposal(ctx, client, first.ID)
			if err != nil {
				return sum, fmt.Errorf("accept proposal %d: %w", first.ID, err)
			}
			sum.Contracts++

			for k := s.faker.Number(1, 3); k > 0; k-- {
				if _, err := s.engine.CreateMilestone(ctx, client, result.Contract.ID, workflow.CreateMilestoneInput{
					Description: s.faker.Sentence(6),
				}); err != nil {
					return sum, fmt.Errorf("create milestone: %w", err)
				}
				sum.Milestones++
			}
		}
	}

	logger.Info().
		Int("users", sum.Users).
		Int("projects", sum.Projects).
		Int("proposals", sum.Proposals).
		Int("contracts", sum.Contracts).
		Int("milestones", sum.Milestones).
		Msg("Seeding complete")
	return sum, nil
}

func (s *Seeder) users(ctx context.Context, role models.Role, n int) ([]authz.Actor, error) {
	actors := make([]authz.Actor, 0, n)
	for i := 0; i < n; i++ {
		first, last := s.faker.FirstName(), s.faker.LastName()
		email := fmt.Sprintf("%s.%s.%d@%s.example.com",
			strings.ToLower(first), strings.ToLower(last), i, strings.ToLower(string(role)))
		u, err := s.engine.RegisterUser(ctx, authz.System(), workflow.RegisterInput{
			Name:     first + " " + last,
			Email:    email,
			Password: DefaultPassword,
			Role:     role,
		})
		if err != nil {
			return actors, fmt.Errorf("register %s: %w", email, err)
		}
		actors = append(actors, authz.Actor{ID: u.ID, Role: u.Role})
	}
	return actors, nil
}

func (s *Seeder) project() workflow.CreateProjectInput {
	low := s.faker.Number(1, 20) * 100
	skills := make([]string, 0, 3)
	for _, i := range s.pick(len(skillPool), s.faker.Number(1, 3)) {
		skills = append(skills, skillPool[i])
	}
	return workflow.CreateProjectInput{
		Title:       strings.TrimSuffix(s.faker.Sentence(5), "."),
		Description: s.faker.Paragraph(2, 3, 10, "\n"),
		MinBudget:   float64(low),
		MaxBudget:   float64(low + s.faker.Number(1, 30)*100),
		Deadline:    time.Now().AddDate(0, 0, s.faker.Number(7, 90)),
		Skills:      skills,
	}
}

// pick returns k distinct indexes below n in random order.
func (s *Seeder) pick(n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s.faker.ShuffleInts(idx)
	if k > n {
		k = n
	}
	return idx[:k]
}
