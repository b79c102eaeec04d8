package internal

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/csvledger/internal/testutil"
	pkgconfig "github.com/starford/csvledger/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
}

func TestApplicationConfig_EmptyFormatDefaultsText(t *testing.T) {
	cfg := ApplicationConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty format should default to text: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("format = %q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestApplicationConfig_InvalidFormat(t *testing.T) {
	cfg := ApplicationConfig{LogFormat: "xml"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid format should fail validation")
	}
}

func TestStoreConfig_RequiresDataFile(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Store.DataFile = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("missing data file should fail")
	}
	if !strings.Contains(err.Error(), "data_file") && !strings.Contains(err.Error(), "DataFile") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestJournalConfig_PathOnlyWhenEnabled(t *testing.T) {
	cfg := JournalConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled journal needs no path: %v", err)
	}
	cfg.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled journal without path should fail")
	}
}

func TestLoadYAML_ExpandsEnv(t *testing.T) {
	t.Setenv("LEDGER_DIR", "/srv/money")
	path := testutil.WriteFile(t, t.TempDir(), "config.yaml", `
app:
  log_level: debug
  log_format: json
store:
  data_file: ${LEDGER_DIR}/tx.csv
  id_column: txn
changeset:
  skip_dangling: true
journal:
  enabled: false
`)
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.LogFormat != LogFormatJSON {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Store.DataFile != "/srv/money/tx.csv" || cfg.Store.IDColumn != "txn" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Changeset.SkipDangling || cfg.Changeset.Backup {
		t.Errorf("changeset = %+v", cfg.Changeset)
	}
	// untouched keys keep their defaults
	if cfg.Journal.Enabled || cfg.Journal.Path != "./csvledger.db" {
		t.Errorf("journal = %+v", cfg.Journal)
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Store.DataFile != "./transactions.csv" {
		t.Errorf("store = %+v", cfg.Store)
	}
}
