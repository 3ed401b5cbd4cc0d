// Command docguard is the document anonymization service.
//
// It extracts text from uploaded documents (PDF, DOCX, HTML, images),
// replaces sensitive values with deterministic tokens, sends only the
// anonymized text to the Gemini model for comparison or design generation,
// and restores the original values in the model's answer.
//
// Usage:
//
//	# Model features need an API key (also read from .env)
//	GEMINI_API_KEY=... ./docguard
//
//	# Custom ports
//	SERVER_PORT=9090 MANAGEMENT_PORT=9091 ./docguard
//
// Without an API key the extraction and anonymization endpoints still work;
// comparison and design generation answer 503 and images are rejected.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docguard/internal/anonymizer"
	"docguard/internal/api"
	"docguard/internal/config"
	"docguard/internal/extractor"
	"docguard/internal/llm"
	"docguard/internal/logger"
	"docguard/internal/management"
	"docguard/internal/metrics"
	"docguard/internal/parser"
	"docguard/internal/service"
)

func main() {
	cfg := config.Load()
	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.New("MAIN", cfg.LogLevel).Fatalf("exit", "%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New("MAIN", cfg.LogLevel)
	m := metrics.New()

	// Operator keywords survive restarts in the bbolt file.
	var store management.WordStore
	if cfg.VocabularyDB != "" {
		s, err := management.OpenBoltStore(cfg.VocabularyDB, logger.New("MANAGEMENT", cfg.LogLevel))
		if err != nil {
			return err
		}
		store = s
	}
	vocab, err := management.NewVocabularyRegistry(store, logger.New("MANAGEMENT", cfg.LogLevel))
	if err != nil {
		if store != nil {
			store.Close() //nolint:errcheck // already failing
		}
		return err
	}
	defer vocab.Close() //nolint:errcheck // best-effort on shutdown

	builtin := anonymizer.DefaultVocabulary().With(cfg.ExtraKeywords...)
	anon := anonymizer.New(builtin,
		anonymizer.WithMetrics(m),
		anonymizer.WithExtraWords(vocab.Words),
	)

	opts := api.Options{
		Anonymizer:   anon,
		TemplatesDir: cfg.DesignTemplatesDir,
		MaxUpload:    cfg.MaxUploadBytes(),
		Log:          logger.New("API", cfg.LogLevel),
		Metrics:      m,
	}

	var vision parser.Vision
	if cfg.GeminiAPIKey != "" {
		client, err := llm.New(ctx, llm.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.ModelTimeout(),
		}, logger.New("MODEL", cfg.LogLevel), m)
		if err != nil {
			return err
		}
		vision = client
		opts.Comparator = service.NewComparator(client, anon, logger.New("COMPARE", cfg.LogLevel))
		opts.Generator = service.NewGenerator(client, anon, logger.New("GENERATE", cfg.LogLevel))
	} else {
		log.Warn("model_disabled", "GEMINI_API_KEY not set: compare, generate_design and images are unavailable")
	}

	registry := parser.NewRegistry(vision, logger.New("PARSER", cfg.LogLevel), m)
	opts.Extractor = extractor.New(registry, anon, logger.New("EXTRACT", cfg.LogLevel), m)

	mgmt := management.New(cfg, builtin, vocab, m, logger.New("MANAGEMENT", cfg.LogLevel))
	servers := []*http.Server{
		{
			Addr:              cfg.ServerAddr(),
			Handler:           api.New(opts).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		mgmt.HTTPServer(),
	}
	return serve(ctx, log, servers...)
}

// serve runs every server until ctx is done or one of them fails, then
// shuts all of them down.
func serve(ctx context.Context, log *logger.Logger, servers ...*http.Server) error {
	errc := make(chan error, len(servers))
	for _, srv := range servers {
		log.Infof("listen", "%s", srv.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutdown", "signal received")
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Warnf("shutdown", "%s: %v", srv.Addr, serr)
		}
	}
	return err
}

func printBanner(cfg *config.Config) {
	model := cfg.GeminiModel
	if cfg.GeminiAPIKey == "" {
		model += " (disabled: set GEMINI_API_KEY)"
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          docguard  (document anonymization)          ║
╚══════════════════════════════════════════════════════╝
  API             : http://%s
  Management      : http://%s
  Model           : %s
  Design examples : %s
  Vocabulary db   : %s
  Max upload      : %d MB

  Extract two documents:
    curl -F doc1=@copy.docx -F doc2=@design.pdf http://%s/api/extract

  Check status:
    curl http://%s/status
`, cfg.ServerAddr(), cfg.ManagementAddr(),
		model,
		cfg.DesignTemplatesDir, cfg.VocabularyDB, cfg.MaxUploadMB,
		cfg.ServerAddr(),
		cfg.ManagementAddr())
}
