package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestFromCLIRequiresExactlyOneSource(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error for no source")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected error for both sources")
	}
	src, err := FromCLI("a.toml", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("unexpected file source: %+v err=%v", src, err)
	}
	src, err = FromCLI("", "confdir")
	if err != nil || src.Dir != "confdir" {
		t.Fatalf("unexpected dir source: %+v err=%v", src, err)
	}
}

func TestLoadSnapshotAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeTempConfig(t, ``)
	cfg, err := LoadSnapshot(Source{File: path})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	if cfg.Service.Name != "gridalert" {
		t.Fatalf("unexpected default service name: %q", cfg.Service.Name)
	}
	if !cfg.Log.Console.Enabled || cfg.Log.Console.Format != "line" || cfg.Log.Console.Level != "info" {
		t.Fatalf("unexpected console defaults: %+v", cfg.Log.Console)
	}
	if cfg.Ingest.HTTP.Listen != ":8080" || cfg.Ingest.HTTP.IngestPath != "/ingest" {
		t.Fatalf("unexpected http defaults: %+v", cfg.Ingest.HTTP)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Fatalf("unexpected store default: %q", cfg.Store.Backend)
	}
	if cfg.Hub.Path != "/ws" || cfg.Hub.SendBuffer != 16 {
		t.Fatalf("unexpected hub defaults: %+v", cfg.Hub)
	}
}

func TestLoadSnapshotNATSDefaults(t *testing.T) {
	t.Parallel()

	path := writeTempConfig(t, `
[ingest.nats]
enabled = true
`)
	cfg, err := LoadSnapshot(Source{File: path})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	nats := cfg.Ingest.NATS
	if nats.Subject != "gridalert.observations" || nats.Stream != "GRIDALERT_OBSERVATIONS" {
		t.Fatalf("unexpected fixed routing keys: %+v", nats)
	}
	if len(nats.URL) != 1 || nats.AckWaitSec != 30 || nats.MaxAckPending != 1024 {
		t.Fatalf("unexpected nats defaults: %+v", nats)
	}
}

func TestLoadSnapshotValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"unknown backend", "[store]\nbackend = \"redis\"\n"},
		{"postgres needs dsn", "[store]\nbackend = \"postgres\"\n"},
		{"hub path", "[hub]\npath = \"ws\"\n"},
		{"telegram needs token", "[notify.telegram]\nenabled = true\nchat_id = \"42\"\n"},
		{"webhook needs url", "[notify.webhook]\nenabled = true\nurl = \"not a url\"\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeTempConfig(t, tc.body)
			if _, err := LoadSnapshot(Source{File: path}); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadSnapshotMergesDirFragmentsInNameOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "10-base.toml"), []byte("[service]\nname = \"base\"\n[hub]\nsend_buffer = 8\n"), 0o644); err != nil {
		t.Fatalf("write fragment: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "20-override.toml"), []byte("[service]\nname = \"override\"\n"), 0o644); err != nil {
		t.Fatalf("write fragment: %v", err)
	}

	cfg, err := LoadSnapshot(Source{Dir: dir})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if cfg.Service.Name != "override" {
		t.Fatalf("later fragment must win: %q", cfg.Service.Name)
	}
	if cfg.Hub.SendBuffer != 8 {
		t.Fatalf("earlier fragment values must survive: %d", cfg.Hub.SendBuffer)
	}
}

func TestLoadSnapshotRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := LoadSnapshot(Source{Dir: t.TempDir()}); err == nil {
		t.Fatalf("expected error for directory without toml files")
	}
}
