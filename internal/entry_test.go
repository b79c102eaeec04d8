package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, LogFormatJSON)
	logger.Debug("hidden")
	logger.Info("shown", slog.Int("n", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not one JSON record: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "shown" || rec["n"] != float64(3) {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLogger_TextWithoutColour(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelDebug, LogFormatText).Debug("hello", slog.String("k", "v"))
	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "k=v") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("non-terminal output is coloured: %q", out)
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Store.DataFile = filepath.Join(dir, "tx.csv")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	return cfg
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("New without config should fail")
	}
}

func TestNew_WiresLedgerAndJournal(t *testing.T) {
	var logs bytes.Buffer
	app, err := New(WithConfig(testConfig(t)), WithLogOutput(&logs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	ctx := context.Background()
	if err := app.Ledger.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	entries, err := app.Ledger.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v", entries)
	}
}

func TestApp_WatchStopsOnCancel(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	app, err := New(WithConfig(cfg), WithLogOutput(&logs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()
	if err := app.Ledger.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
