// Package queue is the durable command mailbox shared between the daemon
// and any other local process (stokerctl, scripts). Records live in the
// sqlite database so an enqueuer can exit before the drain loop runs.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status of a queued command.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusTimedOut  = "timed_out"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("command not found")

type Command struct {
	ID        int64         `json:"id"`
	Text      string        `json:"text"`
	Status    string        `json:"status"`
	Timeout   time.Duration `json:"timeout"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Result is what a waiter gets back. Status is "completed" once the stored
// record reached any terminal state, or "timeout" if the wait gave up first.
type Result struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Queue struct {
	db           *sql.DB
	pollInterval time.Duration
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db, pollInterval: 100 * time.Millisecond}
}

// Add persists a new pending command and returns its id. IDs are assigned
// by the database and increase monotonically with enqueue order.
func (q *Queue) Add(text string, timeout time.Duration) (int64, error) {
	res, err := q.db.Exec(
		`INSERT INTO commands (text, status, timeout_ms) VALUES (?, ?, ?)`,
		text, StatusPending, timeout.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue command: %w", err)
	}
	return res.LastInsertId()
}

// Pending returns all pending commands, oldest first. Commands whose own
// timeout elapsed while still pending are marked timed_out and skipped.
func (q *Queue) Pending() ([]Command, error) {
	rows, err := q.db.Query(
		`SELECT id, text, timeout_ms, created_at FROM commands WHERE status = ? ORDER BY id ASC`,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var pending []Command
	var expired []int64
	now := time.Now()
	for rows.Next() {
		var c Command
		var timeoutMS int64
		if err := rows.Scan(&c.ID, &c.Text, &timeoutMS, &c.CreatedAt); err != nil {
			continue
		}
		c.Status = StatusPending
		c.Timeout = time.Duration(timeoutMS) * time.Millisecond
		if c.Timeout > 0 && now.Sub(c.CreatedAt) > c.Timeout {
			expired = append(expired, c.ID)
			continue
		}
		pending = append(pending, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range expired {
		q.db.Exec(
			`UPDATE commands SET status = ?, error = 'timed out before execution', completed_at = ? WHERE id = ? AND status = ?`,
			StatusTimedOut, time.Now(), id, StatusPending,
		)
	}
	return pending, nil
}

// MarkRunning transitions a pending command to running. The guard on the
// previous status keeps two drainers from double-processing a record.
func (q *Queue) MarkRunning(id int64) (bool, error) {
	res, err := q.db.Exec(
		`UPDATE commands SET status = ? WHERE id = ? AND status = ?`,
		StatusRunning, id, StatusPending,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCompleted records the terminal outcome of a command. Idempotent:
// a command already in a terminal state is left untouched.
func (q *Queue) MarkCompleted(id int64, success bool, output, errMsg string) error {
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	_, err := q.db.Exec(
		`UPDATE commands SET status = ?, output = ?, error = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		status, output, errMsg, time.Now(), id, StatusPending, StatusRunning,
	)
	return err
}

// Get returns a single command record.
func (q *Queue) Get(id int64) (*Command, error) {
	var c Command
	var timeoutMS int64
	var output, errMsg sql.NullString
	err := q.db.QueryRow(
		`SELECT id, text, status, timeout_ms, output, error, created_at FROM commands WHERE id = ?`, id,
	).Scan(&c.ID, &c.Text, &c.Status, &timeoutMS, &output, &errMsg, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Timeout = time.Duration(timeoutMS) * time.Millisecond
	c.Output = output.String
	c.Error = errMsg.String
	return &c, nil
}

// WaitForCompletion polls until the command reaches a terminal status or
// the timeout elapses. A timeout only stops the wait; the stored record is
// not mutated, and a late completion never alters the returned Result.
func (q *Queue) WaitForCompletion(ctx context.Context, id int64, timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		c, err := q.Get(id)
		if err == nil {
			switch c.Status {
			case StatusCompleted:
				return Result{Status: "completed", Success: true, Output: c.Output}
			case StatusFailed, StatusTimedOut:
				return Result{Status: "completed", Success: false, Output: c.Output, Error: c.Error}
			}
		} else if errors.Is(err, ErrNotFound) {
			return Result{Status: "completed", Success: false, Error: "command not found"}
		}

		if time.Now().After(deadline) {
			return Result{Status: "timeout", Success: false, Error: "timed out waiting for completion"}
		}
		select {
		case <-ctx.Done():
			return Result{Status: "timeout", Success: false, Error: ctx.Err().Error()}
		case <-ticker.C:
		}
	}
}

// CleanupOld deletes terminal records older than the retention window.
func (q *Queue) CleanupOld(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format("2006-01-02 15:04:05")
	res, err := q.db.Exec(
		`DELETE FROM commands WHERE status IN (?, ?, ?) AND created_at < ?`,
		StatusCompleted, StatusFailed, StatusTimedOut, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup commands: %w", err)
	}
	return res.RowsAffected()
}
