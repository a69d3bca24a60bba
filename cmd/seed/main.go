package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nikhil/saasbase/internal/config"
	"github.com/nikhil/saasbase/internal/database"
	"github.com/nikhil/saasbase/internal/logger"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
	"github.com/nikhil/saasbase/internal/repository"
	"github.com/nikhil/saasbase/internal/service/billing"
	"github.com/nikhil/saasbase/pkg/utils"
)

const (
	seedEmail    = "test@test.com"
	seedPassword = "admin123"
	seedTeamName = "Test Team"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("seed", "").Fatal("Failed to load configuration", "error", err)
	}
	log := logger.NewLogger("seed", cfg.AppEnv)
	defer log.Sync()

	if err := seed(context.Background(), cfg, log); err != nil {
		log.Fatal("Seed failed", "error", err)
	}
	log.Info("Seed data created successfully")
}

func seed(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	sqlDB, err := database.Open(ctx, database.Config{
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		Name:     cfg.DB.Name,
	}, log)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.Migrate(sqlDB, log); err != nil {
		return err
	}
	tx, err := database.NewTransactionManager(sqlDB)
	if err != nil {
		return err
	}
	db := database.NewDB(sqlDB)
	users := repository.NewUserRepository(db)
	teams := repository.NewTeamRepository(db)

	if _, err := users.GetActiveByEmail(ctx, seedEmail); err == nil {
		log.Info("Seed user already exists", "email", seedEmail)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	} else {
		hash, err := utils.HashPassword(seedPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user := usermodels.User{ID: uuid.NewString(), Email: seedEmail, Role: usermodels.RoleOwner, CreatedAt: now, UpdatedAt: now}
		team := teammodels.Team{ID: uuid.NewString(), Name: seedTeamName, CreatedAt: now, UpdatedAt: now}

		err = tx.Do(ctx, func(ctx context.Context) error {
			if err := users.Create(ctx, user); err != nil {
				return err
			}
			if err := users.SetPasswordHash(ctx, user.ID, hash, now); err != nil {
				return err
			}
			if err := teams.CreateTeam(ctx, team); err != nil {
				return err
			}
			return teams.AddMember(ctx, teammodels.TeamMember{
				ID:       uuid.NewString(),
				UserID:   user.ID,
				TeamID:   team.ID,
				Role:     teammodels.RoleOwner,
				JoinedAt: now,
			})
		})
		if err != nil {
			return err
		}
		log.Info("Initial user and team created", "email", seedEmail, "team_id", team.ID)
	}

	if cfg.StripeSecretKey == "" {
		log.Info("STRIPE_SECRET_KEY not set, skipping plan creation")
		return nil
	}
	bill := billing.NewService(billing.NewStripeGateway(cfg.StripeSecretKey), teams, billing.Config{BaseURL: cfg.BaseURL}, log)
	return bill.SeedPlans(ctx, billing.DefaultPlans)
}
