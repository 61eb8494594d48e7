// Command briefctl is the operator tool for the brief job queue: enqueue a
// script, inspect a job, or requeue a failed one.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hakivo/briefcast/internal/config"
	"github.com/hakivo/briefcast/internal/jobstore"
	"github.com/hakivo/briefcast/internal/protocol"
	"github.com/nats-io/nats.go"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'enqueue', 'status', 'requeue', or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "enqueue":
		err = runEnqueue(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "requeue":
		err = runRequeue(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runEnqueue(args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	configPath := fs.String("config", "briefcast.yaml", "Path to configuration file")
	scriptPath := fs.String("script", "", "Path to the script file, or - for stdin")
	notify := fs.Bool("notify", true, "Publish a trigger so a running daemon picks the job up")
	fs.Parse(args)

	if *scriptPath == "" {
		return fmt.Errorf("enqueue requires -script")
	}
	script, err := readScript(*scriptPath)
	if err != nil {
		return err
	}

	cfg, store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	id := uuid.NewString()
	if err := store.Create(ctx, id, script); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	fmt.Println(id)

	if *notify {
		if err := publishTrigger(cfg, id); err != nil {
			// The poller will still find the job; the trigger is best effort.
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "briefcast.yaml", "Path to configuration file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("status requires exactly one job id")
	}

	_, store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.Get(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("id:      %s\n", job.ID)
	fmt.Printf("status:  %s\n", job.Status)
	if job.AudioURL != "" {
		fmt.Printf("audio:   %s\n", job.AudioURL)
	}
	fmt.Printf("created: %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Printf("updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
	return nil
}

func runRequeue(args []string) error {
	fs := flag.NewFlagSet("requeue", flag.ExitOnError)
	configPath := fs.String("config", "briefcast.yaml", "Path to configuration file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("requeue requires exactly one job id")
	}

	_, store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Requeue(context.Background(), fs.Arg(0)); err != nil {
		return err
	}
	fmt.Println("requeued")
	return nil
}

func openStore(configPath string) (config.Config, *jobstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jobstore.Open(context.Background(), cfg.Store, logger)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("open job store: %w", err)
	}
	return cfg, store, nil
}

func readScript(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

func publishTrigger(cfg config.Config, jobID string) error {
	conn, err := nats.Connect(strings.Join(cfg.Bus.Servers, ","), nats.Name("briefctl"),
		nats.Timeout(time.Duration(cfg.Bus.ConnectTimeout)*time.Millisecond))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	event, err := json.Marshal(protocol.ScriptReadyEvent{JobID: jobID, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := conn.Publish(protocol.SubjectScriptReady, event); err != nil {
		return fmt.Errorf("publish script event: %w", err)
	}
	if err := conn.Publish(protocol.SubjectTrigger, nil); err != nil {
		return fmt.Errorf("publish trigger: %w", err)
	}
	return conn.Flush()
}
