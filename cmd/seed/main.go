// Command seed fills the configured database with demo marketplace data.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/config"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/seed"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/logger"
)

func main() {
	defaults := seed.DefaultOptions()
	clients := flag.Int("clients", defaults.Clients, "Number of client accounts to create")
	freelancers := flag.Int("freelancers", defaults.Freelancers, "Number of freelancer accounts to create")
	projects := flag.Int("projects", defaults.ProjectsPerClient, "Projects per client")
	proposals := flag.Int("proposals", defaults.ProposalsPerProject, "Proposals per project")
	accept := flag.Float64("accept", defaults.AcceptRatio, "Share of projects that get a contract (0-1)")
	seedValue := flag.Int64("seed", defaults.Seed, "Random seed")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(models.GetDB()); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	s := store.New(models.GetDB())
	engine := workflow.New(s, authz.New(s, authz.WithContractDeletePolicy(cfg.Workflow.ContractDeletePolicy)),
		workflow.WithRejectSiblings(cfg.Workflow.RejectSiblingsOnAccept))

	seeder := seed.NewSeeder(engine, seed.Options{
		Clients:             *clients,
		Freelancers:         *freelancers,
		ProjectsPerClient:   *projects,
		ProposalsPerProject: *proposals,
		AcceptRatio:         *accept,
		Seed:                *seedValue,
	})
	if _, err := seeder.Run(context.Background()); err != nil {
		logger.Fatalf("Seeding failed: %v", err)
	}
	logger.Infof("All seeded accounts use the password %q", seed.DefaultPassword)
}
