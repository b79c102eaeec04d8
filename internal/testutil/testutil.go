// Package testutil provides shared test helpers for setting up data files and journals.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/journal"
	"github.com/starford/csvledger/internal/models"
)

// QuietLogger only reports errors.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestJournal creates a temporary SQLite journal that is automatically cleaned up.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	db, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// WriteFile writes content to name inside dir and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ReadFile returns the contents of path as a string.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// Tx builds a transaction from its text columns. Invalid input fails the test.
func Tx(t *testing.T, date, description, amount, account string) models.Transaction {
	t.Helper()
	tx := models.Transaction{Description: description, Account: account}
	var err error
	if tx.Date, err = codec.ParseDate(date); err != nil {
		t.Fatal(err)
	}
	if tx.Amount, err = codec.ParseAmount(amount); err != nil {
		t.Fatal(err)
	}
	return tx
}
