package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestManager_Load(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", `
build:
  workers: 4
  scratch_dir: /tmp/user
checkpoint:
  backend: local
`)
	project := writeFile(t, dir, "project.yaml", `
build:
  workers: 8
checkpoint:
  redis:
    ttl: 1h
`)

	m := NewManagerWithPaths(user, filepath.Join(dir, "missing.yaml"), project)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := m.Get()

	if cfg.Build.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Build.Workers)
	}
	if cfg.Build.ScratchDir != "/tmp/user" {
		t.Errorf("scratch_dir = %q", cfg.Build.ScratchDir)
	}
	if cfg.Checkpoint.Backend != "local" {
		t.Errorf("backend = %q", cfg.Checkpoint.Backend)
	}
	if cfg.Checkpoint.Redis.TTL != time.Hour {
		t.Errorf("redis ttl = %v", cfg.Checkpoint.Redis.TTL)
	}
	if cfg.Checkpoint.Redis.Prefix != "ismn:checkpoints:" {
		t.Errorf("untouched default lost: prefix = %q", cfg.Checkpoint.Redis.Prefix)
	}
	if got := strings.Join(m.Paths(), ","); got != user+","+project {
		t.Errorf("Paths() = %s", got)
	}
}

func TestManager_Env(t *testing.T) {
	t.Setenv("ISMN_WORKERS", "3")
	t.Setenv("ISMN_LOG_LEVEL", "debug")
	t.Setenv("ISMN_S3_BUCKET", "ismn-index")
	t.Setenv("ISMN_TELEMETRY", "true")

	m := NewManagerWithPaths()
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := m.Get()
	if cfg.Build.Workers != 3 || cfg.Log.Level != "debug" || cfg.Publish.Bucket != "ismn-index" || !cfg.Telemetry.Enabled {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestManager_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "broken yaml", yaml: "build: [workers"},
		{name: "negative workers", yaml: "build:\n  workers: -1\n"},
		{name: "unknown backend", yaml: "checkpoint:\n  backend: etcd\n"},
		{name: "unknown compression", yaml: "export:\n  compression: brotli\n"},
		{name: "bad level", yaml: "log:\n  level: loud\n"},
		{name: "bad sample rate", yaml: "telemetry:\n  sample_rate: 2\n"},
		{name: "bad env workers", env: map[string]string{"ISMN_WORKERS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var paths []string
			if tt.yaml != "" {
				paths = append(paths, writeFile(t, t.TempDir(), "c.yaml", tt.yaml))
			}
			if err := NewManagerWithPaths(paths...).Load(); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestManager_LoadFile(t *testing.T) {
	m := NewManagerWithPaths()
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if err := m.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}

	p := writeFile(t, t.TempDir(), "explicit.yaml", "export:\n  compression: zstd\n")
	if err := m.LoadFile(p); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m.Get().Export.Compression != "zstd" {
		t.Errorf("compression = %q", m.Get().Export.Compression)
	}
}

func TestManager_SaveTo(t *testing.T) {
	m := NewManagerWithPaths()
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.Get().Build.Workers = 5

	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := m.SaveTo(p); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	reloaded := NewManagerWithPaths(p)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Get().Build.Workers != 5 {
		t.Errorf("workers = %d after reload", reloaded.Get().Build.Workers)
	}
}
