// Package metrics periodically samples the supervised process and keeps a
// bounded history in sqlite plus a live feed for websocket subscribers.
package metrics

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/emberfall/stoker/internal/supervisor"
)

type Sample struct {
	ID          int64   `json:"id"`
	PID         int     `json:"pid"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Threads     int32   `json:"threads"`
	Uptime      float64 `json:"uptime_seconds"`
	RecordedAt  string  `json:"recorded_at"`
}

type Collector struct {
	db  *sql.DB
	sup *supervisor.Supervisor

	interval  time.Duration
	retention time.Duration

	mu        sync.RWMutex
	latest    *Sample
	listeners []chan *Sample

	cancel context.CancelFunc
}

func NewCollector(db *sql.DB, sup *supervisor.Supervisor) *Collector {
	return &Collector{
		db:        db,
		sup:       sup,
		interval:  10 * time.Second,
		retention: 24 * time.Hour,
	}
}

func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		// Run immediately on start
		c.collect()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()

	log.Printf("metrics collector started (%s interval)", c.interval)
}

func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Collector) collect() {
	if !c.sup.IsAlive() {
		return
	}
	snap := c.sup.GetPerformanceMetrics()

	sample := &Sample{
		PID:         snap.PID,
		CPUPercent:  snap.CPUPercent,
		MemoryBytes: snap.MemoryBytes,
		Threads:     snap.Threads,
		Uptime:      snap.Uptime.Seconds(),
		RecordedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	_, err := c.db.Exec(
		`INSERT INTO metrics (pid, cpu_percent, memory_bytes, threads, uptime_seconds) VALUES (?, ?, ?, ?, ?)`,
		sample.PID, sample.CPUPercent, sample.MemoryBytes, sample.Threads, sample.Uptime,
	)
	if err != nil {
		log.Printf("metrics: insert: %v", err)
	}

	// Fan out under the lock so Unsubscribe can never close a channel
	// mid-send. Sends are non-blocking either way.
	c.mu.Lock()
	c.latest = sample
	for _, ch := range c.listeners {
		select {
		case ch <- sample:
		default:
			// Drop if listener is slow
		}
	}
	c.mu.Unlock()

	cutoff := time.Now().Add(-c.retention).UTC().Format("2006-01-02 15:04:05")
	_, err = c.db.Exec("DELETE FROM metrics WHERE recorded_at < ?", cutoff)
	if err != nil {
		log.Printf("metrics: cleanup: %v", err)
	}
}

func (c *Collector) Latest() *Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// History returns samples recorded within the period, oldest first.
func (c *Collector) History(period time.Duration) ([]Sample, error) {
	since := time.Now().Add(-period).UTC().Format("2006-01-02 15:04:05")
	rows, err := c.db.Query(
		`SELECT id, pid, cpu_percent, memory_bytes, threads, uptime_seconds, recorded_at
		FROM metrics WHERE recorded_at >= ? ORDER BY recorded_at ASC`, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Sample{}
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.ID, &s.PID, &s.CPUPercent, &s.MemoryBytes, &s.Threads, &s.Uptime, &s.RecordedAt); err != nil {
			continue
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (c *Collector) Subscribe() chan *Sample {
	ch := make(chan *Sample, 1)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

func (c *Collector) Unsubscribe(ch chan *Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.listeners {
		if l == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}
