package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/config"
	"github.com/nikhil/saasbase/internal/database"
	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/models"
	"github.com/nikhil/saasbase/internal/repository"
	"github.com/nikhil/saasbase/internal/routes"
	services "github.com/nikhil/saasbase/internal/service/auth"
	"github.com/nikhil/saasbase/internal/service/activity"
	"github.com/nikhil/saasbase/internal/service/billing"
	"github.com/nikhil/saasbase/internal/service/notify"
	"github.com/nikhil/saasbase/internal/service/session"
	teamService "github.com/nikhil/saasbase/internal/service/team"
	profileService "github.com/nikhil/saasbase/internal/service/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("saasbase", "").Fatal("Failed to load configuration", "error", err)
	}
	log := logger.NewLogger("saasbase", cfg.AppEnv)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Server stopped", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	dbConfig := database.Config{
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		Name:     cfg.DB.Name,
	}
	sqlDB, err := database.Open(ctx, dbConfig, log)
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
	invitations := repository.NewInvitationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	var sessionOpts []session.Option
	if cfg.RedisURL != "" {
		client, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		sessionOpts = append(sessionOpts, session.WithCache(session.NewRedisCache(client)))
		log.Info("Session cache enabled")
	}
	sessions := session.NewManager(sessionRepo, users, session.Config{
		Secret:        []byte(cfg.AuthSecret),
		TTL:           cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
	}, log, sessionOpts...)

	hub := models.NewHub()
	recorder := activity.NewRecorder(activityRepo, hub, log)

	var gateway billing.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = billing.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, checkout disabled")
	}
	bill := billing.NewService(gateway, teams, billing.Config{
		BaseURL:       cfg.BaseURL,
		WebhookSecret: cfg.StripeWebhookSecret,
	}, log)

	var notifier notify.Notifier = notify.NewLogNotifier(cfg.BaseURL, log)
	if cfg.SMTP.Enabled() {
		mailer, err := notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, cfg.BaseURL, log)
		if err != nil {
			return err
		}
		notifier = mailer
	}

	teamSvc := teamService.NewTeamService(teamService.Deps{
		Teams:       teams,
		Users:       users,
		Invitations: invitations,
		Activity:    recorder,
		Tx:          tx,
		Checkout:    bill,
		Notifier:    notifier,
		Feed:        hub,
		Log:         log,
	})
	profileSvc := profileService.NewProfileService(profileService.Deps{
		Users:    users,
		Teams:    teams,
		Activity: recorder,
		Sessions: sessions,
		Feed:     hub,
		Tx:       tx,
		Log:      log,
	})
	authSvc := services.NewAuthService(users, teams, sessions, recorder, tx, log)

	trusted, err := action.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	router := routes.RegisterAllRoutes(&handlers.Handlers{
		Auth:      handlers.NewAuthHandler(authSvc, log),
		Team:      handlers.NewTeamHandler(teamSvc, sessions, log),
		Account:   handlers.NewAccountHandler(profileSvc, sessions, log),
		WebSocket: handlers.NewWebSocketHandler(hub, teamSvc, cfg.BaseURL, log),
		Billing:   handlers.NewBillingHandler(bill, log),
		Resolver:  sessions,
		Log:       log,
	}, routes.Options{Timeout: cfg.RequestTimeout, TrustedProxies: trusted})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server is running", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
