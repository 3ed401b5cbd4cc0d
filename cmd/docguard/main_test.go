package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"docguard/internal/config"
	"docguard/internal/logger"
)

// captureStdout redirects os.Stdout to a pipe for the duration of fn,
// then returns everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	fn()

	if closeErr := w.Close(); closeErr != nil {
		t.Fatalf("pipe write close: %v", closeErr)
	}
	os.Stdout = old

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read pipe: %v", err)
	}
	return string(out)
}

func TestPrintBanner_ContainsExpectedFields(t *testing.T) {
	cfg := &config.Config{
		ServerPort:         8080,
		ManagementPort:     8081,
		BindAddress:        "127.0.0.1",
		GeminiModel:        "gemini-2.0-flash",
		GeminiAPIKey:       "key",
		DesignTemplatesDir: "model_templates/design",
		VocabularyDB:       "docguard-vocabulary.db",
		MaxUploadMB:        16,
	}

	out := captureStdout(t, func() { printBanner(cfg) })

	for _, want := range []string{"127.0.0.1:8080", "127.0.0.1:8081", "gemini-2.0-flash", "model_templates/design", "16 MB"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in banner output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "disabled") {
		t.Errorf("model should show as enabled, got:\n%s", out)
	}
}

func TestPrintBanner_NoAPIKey(t *testing.T) {
	cfg := &config.Config{GeminiModel: "gemini-2.0-flash"}
	out := captureStdout(t, func() { printBanner(cfg) })

	if !strings.Contains(out, "disabled: set GEMINI_API_KEY") {
		t.Errorf("expected the disabled model hint, got:\n%s", out)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	log := logger.New("MAIN", "error")
	addr := freeAddr(t)
	srv := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
		ReadHeaderTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, log, srv) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close() //nolint:errcheck // test
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	log := logger.New("MAIN", "error")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close() //nolint:errcheck // test

	srv := &http.Server{Addr: l.Addr().String(), ReadHeaderTimeout: time.Second}
	if err := serve(context.Background(), log, srv); err == nil {
		t.Error("expected an error for an address already in use")
	}
}
