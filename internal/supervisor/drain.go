package supervisor

import (
	"context"
	"log"
	"time"
)

// StartLoops begins the queue drain loop and the retention cleanup loop.
func (s *Supervisor) StartLoops() {
	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel

	s.loopWG.Add(2)
	go func() {
		defer s.loopWG.Done()
		ticker := time.NewTicker(s.queueCfg.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.drainOnce(ctx)
			}
		}
	}()
	go func() {
		defer s.loopWG.Done()
		ticker := time.NewTicker(s.queueCfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.q.CleanupOld(s.queueCfg.Retention); err != nil {
					log.Printf("supervisor: queue cleanup: %v", err)
				} else if n > 0 {
					log.Printf("supervisor: queue cleanup removed %d commands", n)
				}
			}
		}
	}()

	log.Printf("supervisor: drain loop started (%s interval)", s.queueCfg.DrainInterval)
}

func (s *Supervisor) StopLoops() {
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopWG.Wait()
	}
}

// drainOnce executes one batch of pending commands, oldest first, strictly
// one at a time. Each command gets a capture session for the duration of
// its grace window, so queue-driven sessions never overlap.
func (s *Supervisor) drainOnce(ctx context.Context) {
	// Pending also expires commands whose own timeout lapsed, so it runs
	// even while the server is down.
	pending, err := s.q.Pending()
	if err != nil {
		log.Printf("supervisor: drain query: %v", err)
		return
	}
	if s.State() != StateRunning {
		return
	}

	for _, cmd := range pending {
		if ctx.Err() != nil || s.State() != StateRunning {
			return
		}
		taken, err := s.q.MarkRunning(cmd.ID)
		if err != nil || !taken {
			// Another drainer claimed it; never double-process.
			continue
		}

		s.cap.Start(cmd.ID, cmd.Text)
		if !s.SendCommand(cmd.Text) {
			s.cap.Finish(cmd.ID)
			s.q.MarkCompleted(cmd.ID, false, "", "server not running")
			continue
		}

		// Grace window: output arriving from now until Finish belongs to
		// this command.
		select {
		case <-ctx.Done():
		case <-time.After(s.queueCfg.CaptureWindow):
		}
		output, _ := s.cap.Finish(cmd.ID)
		if err := s.q.MarkCompleted(cmd.ID, true, output, ""); err != nil {
			log.Printf("supervisor: mark command %d completed: %v", cmd.ID, err)
		}
	}
}
