// stokerctl enqueues commands for a running stokerd through the shared
// sqlite database, so scripts and cron jobs can talk to the server console
// without going through the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/emberfall/stoker/internal/config"
	"github.com/emberfall/stoker/internal/db"
	"github.com/emberfall/stoker/internal/queue"
)

func main() {
	configPath := flag.String("config", "stoker.yaml", "path to config file")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to wait for the command to run")
	noWait := flag.Bool("no-wait", false, "enqueue and exit without waiting for output")
	flag.Parse()

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: stokerctl [flags] <command...>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	q := queue.New(database)
	id, err := q.Add(text, *timeout)
	if err != nil {
		log.Fatalf("failed to enqueue command: %v", err)
	}

	if *noWait {
		fmt.Printf("queued command %d\n", id)
		return
	}

	res := q.WaitForCompletion(context.Background(), id, *timeout)
	switch {
	case res.Status == "timeout":
		fmt.Fprintf(os.Stderr, "command %d still pending: %s\n", id, res.Error)
		os.Exit(1)
	case !res.Success:
		fmt.Fprintf(os.Stderr, "command %d failed: %s\n", id, res.Error)
		os.Exit(1)
	}
	if res.Output != "" {
		fmt.Println(res.Output)
	}
}
