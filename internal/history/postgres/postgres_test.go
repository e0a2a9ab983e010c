package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/llamactl/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	rec := history.Record{
		ProcessID: "pg-test",
		ModelPath: "/models/qwen.gguf",
		ModelName: "qwen",
		Host:      "127.0.0.1",
		Port:      8081,
		PID:       4242,
		Status:    "starting",
	}
	if err := sink.Send(ctx, history.Event{Type: history.EventLaunch, OccurredAt: time.Now(), Record: rec}); err != nil {
		t.Fatalf("Failed to send launch event: %v", err)
	}
	code := 0
	rec.Status = "stopped"
	rec.ExitCode = &code
	if err := sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: time.Now(), Record: rec}); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM launch_history WHERE process_id = $1", rec.ProcessID).Scan(&count); err != nil {
		t.Fatalf("Failed to query launch_history: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events in history, got %d", count)
	}

	var exitCode *int
	if err := sink.db.QueryRowContext(ctx, "SELECT exit_code FROM launch_history WHERE event = 'exit'").Scan(&exitCode); err != nil {
		t.Fatalf("Failed to read exit code: %v", err)
	}
	if exitCode == nil || *exitCode != 0 {
		t.Errorf("Expected exit code 0, got %v", exitCode)
	}
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
