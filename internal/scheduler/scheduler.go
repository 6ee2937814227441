package scheduler

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/emberfall/stoker/internal/backup"
	"github.com/emberfall/stoker/internal/supervisor"
)

type Schedule struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CronExpr  string `json:"cron_expr"`
	Action    string `json:"action"`  // start, stop, restart, backup, command
	Payload   string `json:"payload"` // command text when action is "command"
	Enabled   bool   `json:"enabled"`
	LastRun   string `json:"last_run"`
	CreatedAt string `json:"created_at"`
}

// Scheduler runs cron-style schedules against the supervisor: lifecycle
// actions, backups, or arbitrary console commands.
type Scheduler struct {
	db     *sql.DB
	sup    *supervisor.Supervisor
	backup *backup.Service
	cancel context.CancelFunc
}

func New(db *sql.DB, sup *supervisor.Supervisor, backupSvc *backup.Service) *Scheduler {
	return &Scheduler{
		db:     db,
		sup:    sup,
		backup: backupSvc,
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		// Check every 60 seconds, aligned to the minute
		for {
			now := time.Now()
			nextMinute := now.Truncate(time.Minute).Add(time.Minute)
			sleepDuration := time.Until(nextMinute)

			select {
			case <-ctx.Done():
				return
			case <-time.After(sleepDuration):
				s.tick(ctx)
			}
		}
	}()

	log.Println("Scheduler started")
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	rows, err := s.db.Query(
		`SELECT id, cron_expr, action, payload FROM schedules WHERE enabled = 1`,
	)
	if err != nil {
		log.Printf("scheduler: query: %v", err)
		return
	}
	defer rows.Close()

	type job struct {
		scheduleID string
		cronExpr   string
		action     string
		payload    string
	}

	var jobs []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.scheduleID, &j.cronExpr, &j.action, &j.payload); err != nil {
			continue
		}
		jobs = append(jobs, j)
	}

	for _, j := range jobs {
		cron, err := ParseCron(j.cronExpr)
		if err != nil {
			log.Printf("scheduler: invalid cron %q for schedule %s: %v", j.cronExpr, j.scheduleID, err)
			continue
		}

		if !cron.Matches(now) {
			continue
		}

		log.Printf("scheduler: running %s (schedule %s)", j.action, j.scheduleID)
		s.execute(ctx, j.action, j.payload)

		// Update last_run
		s.db.Exec("UPDATE schedules SET last_run = ? WHERE id = ?", now, j.scheduleID)
	}
}

func (s *Scheduler) execute(ctx context.Context, action, payload string) {
	ok := true
	var err error
	switch action {
	case "start":
		ok = s.sup.Start()
	case "stop":
		ok = s.sup.Stop(false, 30*time.Second)
	case "restart":
		ok = s.sup.Restart()
	case "backup":
		_, err = s.backup.Create()
	case "command":
		_, ok = s.sup.SendCommandViaQueue(ctx, payload, 30*time.Second)
	default:
		log.Printf("scheduler: unknown action %q", action)
		return
	}

	if err != nil {
		log.Printf("scheduler: %s failed: %v", action, err)
	} else if !ok {
		log.Printf("scheduler: %s failed (state %s)", action, s.sup.State())
	}
}
