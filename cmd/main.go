package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nexusdash/nexus/internal/alert"
	"github.com/nexusdash/nexus/internal/api"
	"github.com/nexusdash/nexus/internal/auth"
	"github.com/nexusdash/nexus/internal/config"
	"github.com/nexusdash/nexus/internal/database"
	"github.com/nexusdash/nexus/internal/jobs"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/nexusdash/nexus/internal/monitor"
	"github.com/nexusdash/nexus/internal/notify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:          "nexus",
		Short:        "Nexus alert evaluation and notification server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	root.AddCommand(newServeCommand(), newTokenCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log)
			return serve(cfg)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [user_id]",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			authenticator, err := auth.NewAuthenticator(cfg.Server.JWTSecret)
			if err != nil {
				return err
			}
			token, err := authenticator.GenerateToken(args[0], models.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "Role (admin/user/viewer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func serve(cfg *config.Config) error {
	if err := database.Initialize(cfg.Database.Path); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	db := database.GetDB()

	authenticator, err := auth.NewAuthenticator(cfg.Server.JWTSecret)
	if err != nil {
		return fmt.Errorf("server.jwt_secret: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Notifications.HTTPTimeout}
	mailer, err := notify.NewMailer(cfg.Notifications.Email, httpClient)
	if err != nil {
		return fmt.Errorf("failed to configure email: %w", err)
	}

	aggregator := monitor.NewGormAggregator(db)
	budgets := monitor.NewGormBudgetStore(db)

	dispatcher := notify.NewDispatcher(notify.NewTemplateStore(db), notify.DispatcherConfig{
		DashboardURL: cfg.Dashboard.BaseURL,
		HTTPClient:   httpClient,
		Mailer:       mailer,
	})
	deliveries := notify.NewDeliveryService(db,
		notify.NewRouter(db, cfg.Notifications.FailureThreshold),
		dispatcher,
		notify.DeliveryOptions{
			MaxAttempts:       cfg.Notifications.MaxAttempts,
			BatchSize:         cfg.Notifications.BatchSize,
			ImmediateDispatch: cfg.Notifications.ImmediateDispatch,
		})

	alertManager := alert.NewAlertManager(db,
		alert.WithNotifier(deliveries),
		alert.WithDedupWindow(cfg.Alerts.DedupWindow))
	alertHandler := alert.NewAlertHandler(db)
	evaluator := alert.NewRuleEvaluator(db, aggregator, alertManager,
		alert.WithConcurrency(cfg.Jobs.EvaluationConcurrency))
	detector := alert.NewHeuristicDetector(aggregator, budgets, alertManager)
	rules := alert.NewRuleManager(db, aggregator)
	rules.SetDefaultCooldown(cfg.Alerts.DefaultCooldownMinutes)

	var (
		lock   jobs.Lock = jobs.NewLocalLock()
		leases jobs.LeasePurger
	)
	if cfg.Jobs.Lock == "database" {
		owner := cfg.Jobs.InstanceID
		if owner == "" {
			owner = uuid.NewString()
		}
		dbLock := jobs.NewDBLock(db, owner, cfg.Jobs.LockTTL)
		lock, leases = dbLock, dbLock
		logrus.WithField("owner", owner).Info("Using database job locks")
	}

	manager := jobs.NewManager(map[string]time.Duration{
		jobs.EvaluationJobName: cfg.Jobs.EvaluationInterval,
		jobs.DeliveryJobName:   cfg.Jobs.DeliveryInterval,
		jobs.CleanupJobName:    cfg.Jobs.CleanupInterval,
		jobs.HeuristicJobName:  cfg.Jobs.HeuristicInterval,
	})
	manager.Register(jobs.NewAlertEvaluationJob(evaluator, lock))
	manager.Register(jobs.NewHeuristicAlertJob(detector, aggregator, budgets, lock))
	manager.Register(jobs.NewNotificationDeliveryJob(deliveries, lock))
	manager.Register(jobs.NewCleanupJob(alertHandler, cfg.Alerts.RetentionDays, leases, lock))
	if cfg.Jobs.AutoStart {
		manager.StartAll()
	}
	defer manager.StopAll()

	server := api.NewServer(api.Services{
		Rules:        rules,
		Evaluator:    evaluator,
		AlertManager: alertManager,
		Alerts:       alertHandler,
		Heuristics:   detector,
		Channels:     notify.NewChannelManager(db, dispatcher),
		Preferences:  notify.NewPreferenceManager(db),
		Deliveries:   deliveries,
		Jobs:         manager,
	}, authenticator, cfg.Server.AllowedOrigins)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case sig := <-quit:
		logrus.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
