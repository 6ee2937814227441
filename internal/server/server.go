package server

import (
	"database/sql"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/emberfall/stoker/internal/api"
	"github.com/emberfall/stoker/internal/auth"
	"github.com/emberfall/stoker/internal/backup"
	"github.com/emberfall/stoker/internal/config"
	"github.com/emberfall/stoker/internal/events"
	"github.com/emberfall/stoker/internal/metrics"
	"github.com/emberfall/stoker/internal/players"
	"github.com/emberfall/stoker/internal/queue"
	"github.com/emberfall/stoker/internal/scheduler"
	"github.com/emberfall/stoker/internal/supervisor"

	// Register game adapters
	_ "github.com/emberfall/stoker/internal/game/minecraft"
	_ "github.com/emberfall/stoker/internal/game/vintagestory"
)

// Server wires the supervisor core to its HTTP surface and background
// services. One Server means one supervised child.
type Server struct {
	cfg       *config.Config
	db        *sql.DB
	router    chi.Router
	bus       *events.Bus
	sup       *supervisor.Supervisor
	collector *metrics.Collector
	scheduler *scheduler.Scheduler
}

func New(cfg *config.Config, db *sql.DB) (*Server, error) {
	// Initialize auth
	authSvc := auth.NewService(db)
	if err := authSvc.EnsureDefaultUser(cfg.DefaultUser, cfg.DefaultPass); err != nil {
		return nil, fmt.Errorf("ensure default user: %w", err)
	}

	bus := events.NewBus()
	q := queue.New(db)
	roster := players.NewRoster(bus)

	sup, err := supervisor.New(cfg.Server, cfg.Queue, bus, q)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	sup.StartLoops()

	// Start metrics collector
	collector := metrics.NewCollector(db, sup)
	collector.Start()

	// Initialize backup service
	backupSvc := backup.NewService(db, cfg.DataDir, cfg.Server.Workdir)

	// Start scheduler
	sched := scheduler.New(db, sup, backupSvc)
	sched.Start()

	// Create handlers
	authHandler := api.NewAuthHandler(authSvc)
	controlHandler := api.NewControlHandler(sup, bus, q, roster)
	consoleHandler := api.NewConsoleHandler(sup, bus)
	metricsHandler := api.NewMetricsHandler(sup, collector)
	backupHandler := api.NewBackupHandler(backupSvc, sup)
	scheduleHandler := api.NewScheduleHandler(db)

	// Build router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/login", authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(api.AuthMiddleware(authSvc))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/password", authHandler.ChangePassword)

			r.Route("/server", func(r chi.Router) {
				r.Get("/", controlHandler.Status)
				r.Post("/start", controlHandler.Start)
				r.Post("/stop", controlHandler.Stop)
				r.Post("/restart", controlHandler.Restart)
				r.Post("/command", controlHandler.Command)
				r.Post("/command/output", controlHandler.CommandWithOutput)
				r.Get("/players", controlHandler.Players)
				r.Get("/commands", controlHandler.Commands)

				// Metrics
				r.Get("/metrics", metricsHandler.Snapshot)
				r.Get("/metrics/latest", metricsHandler.Latest)
				r.Get("/metrics/history", metricsHandler.History)
			})

			r.Get("/events/stats", controlHandler.EventStats)

			// Backups
			r.Get("/backups", backupHandler.List)
			r.Post("/backups", backupHandler.Create)
			r.Get("/backups/{backupId}/download", backupHandler.Download)
			r.Delete("/backups/{backupId}", backupHandler.Delete)
			r.Post("/backups/{backupId}/restore", backupHandler.Restore)

			// Schedules
			r.Get("/schedules", scheduleHandler.List)
			r.Post("/schedules", scheduleHandler.Create)
			r.Put("/schedules/{scheduleId}", scheduleHandler.Update)
			r.Delete("/schedules/{scheduleId}", scheduleHandler.Delete)
		})

		// WebSocket routes (auth via query param)
		r.Get("/server/console", consoleHandler.Handle)
		r.Get("/server/metrics/live", metricsHandler.Live)
	})

	return &Server{
		cfg:       cfg,
		db:        db,
		router:    r,
		bus:       bus,
		sup:       sup,
		collector: collector,
		scheduler: sched,
	}, nil
}

func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) Supervisor() *supervisor.Supervisor {
	return s.sup
}

func (s *Server) Bus() *events.Bus {
	return s.bus
}

// Stop shuts the background services and the supervised child down.
func (s *Server) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.collector != nil {
		s.collector.Stop()
	}
	if s.sup != nil {
		s.sup.StopLoops()
		s.sup.Stop(false, s.cfg.Server.StopTimeout)
	}
	if s.bus != nil {
		s.bus.Close()
	}
}
