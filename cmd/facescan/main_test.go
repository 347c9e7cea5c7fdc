package main

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"facescan/internal/config"
	"facescan/internal/daemonrun"
	"facescan/internal/ipc"
	"facescan/internal/ledger"
	"facescan/internal/testsupport"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func startDaemon(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemonrun.Run(ctx, cfg, daemonrun.Options{Quiet: true}) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := ipc.Dial(ctx, cfg.Sockets.Requests)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("daemon requests socket never appeared")
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "facescan", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected output to mention %s, got %q", target, out)
	}
	for _, want := range []string{"requests:", "facescan_requests.sock", "worker:", "Catalog:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected socket layout with %q, got %q", want, out)
		}
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestConfigValidateListsSockets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, cfg.Sockets.Requests) || !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLedgerAddAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	base := testsupport.BaseDir(cfg)

	a := filepath.Join(base, "a.jpg")
	b := filepath.Join(base, "b.png")
	testsupport.WriteJPEG(t, a, 40, 30, color.RGBA{R: 255, A: 255})
	testsupport.WritePNG(t, b, 20, 10, color.RGBA{G: 255, A: 255})
	notes := filepath.Join(base, "notes.txt")
	testsupport.WriteFile(t, notes, []byte("hello"))

	out, _, err := runCLI(t, []string{"ledger", "add", a, b, notes}, path)
	if err == nil || !strings.Contains(err.Error(), "notes.txt") {
		t.Fatalf("expected error for notes.txt, got %v", err)
	}
	if !strings.Contains(out, "40x30") || !strings.Contains(out, "image/png") {
		t.Fatalf("unexpected add output %q", out)
	}

	out, _, err = runCLI(t, []string{"ledger", "stats"}, path)
	if err != nil {
		t.Fatalf("ledger stats: %v", err)
	}
	if !strings.Contains(out, "Pending") || !strings.Contains(out, "Images") {
		t.Fatalf("unexpected stats output %q", out)
	}
}

func TestStatsRowsUseTitleCase(t *testing.T) {
	rows := statsRows(ledger.Stats{Media: 3, Removable: 1, Pending: 2})
	if rows[1][0] != "On Removable Storage" || rows[1][1] != "1" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}

func TestScanAllWaitAgainstDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	l := testsupport.MustOpenLedger(t, cfg)
	img := filepath.Join(testsupport.BaseDir(cfg), "a.jpg")
	testsupport.WriteJPEG(t, img, 16, 16, color.RGBA{B: 255, A: 255})
	testsupport.AddMedia(t, l, ledger.MediaItem{Path: img, StorageID: "internal", MIMEType: "image/jpeg"})

	startDaemon(t, cfg)

	out, _, err := runCLI(t, []string{"scan-all", "--wait", "--timeout", "10s"}, path)
	if err != nil {
		t.Fatalf("scan-all: %v", err)
	}
	if !strings.Contains(out, "SERVICE_COMPLETED received") {
		t.Fatalf("unexpected output %q", out)
	}

	out, _, err = runCLI(t, []string{"scan", "--wait", "--timeout", "10s", img}, path)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, img) {
		t.Fatalf("unexpected output %q", out)
	}

	stats, err := l.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Scanned != 1 {
		t.Fatalf("expected one scan record, got %+v", stats)
	}

	if _, _, err := runCLI(t, []string{"kill"}, path); err != nil {
		t.Fatalf("kill: %v", err)
	}
}

func TestScanWithoutDaemonMentionsStartCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, []string{"scan-all"}, path)
	if err == nil || !strings.Contains(err.Error(), "facescan daemon") {
		t.Fatalf("expected daemon hint, got %v", err)
	}
}

func TestLogsShowsCurrentLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	testsupport.WriteFile(t, cfg.CurrentLogPath(), []byte("one\ntwo\nthree\n"))

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, path)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected output %q", out)
	}
}
