package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"flowportal/internal/config"
	"flowportal/internal/logging"
	"flowportal/internal/registry"
	"flowportal/internal/repository"
	"flowportal/internal/services"
	"flowportal/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	reg := registry.New(cfg)
	flow := services.NewFlowService(reg, logger)
	actor := models.Actor{Email: "seed@localhost", Name: "Seed Script", Roles: []string{"employee"}}

	for _, def := range reg.Definitions() {
		initial, err := reg.InitialStep(def.AppName)
		if err != nil {
			log.Fatalf("Workflow %s has no initial step: %v", def.AppName, err)
		}

		existing, err := store.ListInstances(ctx, def.AppName, initial.Step.Model)
		if err != nil {
			log.Fatalf("Failed to list instances for %s: %v", def.AppName, err)
		}
		if len(existing) > 0 {
			logger.Info("skipping seeded workflow", "app", def.AppName, "instances", len(existing))
			continue
		}

		inst := initial.NewInstance()
		inst.CreatedBy = actor.Email
		for _, field := range initial.Schema.Fields {
			if field.Name == models.RequestIdentifier {
				inst.Fields[field.Name] = fmt.Sprintf("Sample %s request", def.AppName)
			}
		}

		err = store.WithinTx(ctx, func(tx repository.ActivityStore) error {
			if err := tx.CreateInstance(ctx, inst); err != nil {
				return err
			}
			return flow.InitiateRequest(ctx, tx, inst, actor)
		})
		if err != nil {
			log.Printf("Failed to seed workflow %s: %v", def.AppName, err)
			continue
		}
		logger.Info("seeded workflow request", "app", def.AppName, "instance", inst.ID)
	}
	logger.Info("seeding complete")
}
