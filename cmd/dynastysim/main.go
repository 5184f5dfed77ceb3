// Command dynastysim runs noble houses through the generations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/talgya/dynasty/internal/api"
	"github.com/talgya/dynasty/internal/config"
	"github.com/talgya/dynasty/internal/engine"
	"github.com/talgya/dynasty/internal/llm"
	"github.com/talgya/dynasty/internal/persistence"
	"github.com/talgya/dynasty/internal/theme"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("dynastysim failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	th, err := cfg.Theme()
	if err != nil {
		return err
	}
	slog.Info("theme loaded", "name", th.Name, "titles", len(th.Titles), "turn_length", th.TurnLength)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Load or Found Dynasties ──────────────────────────────────────
	dynasties, err := loadOrFound(db, cfg, th)
	if err != nil {
		return err
	}

	// ── LLM Client ───────────────────────────────────────────────────
	llmClient := llm.NewClient(cfg.AnthropicKey)
	if llmClient != nil {
		slog.Info("LLM client enabled (Haiku)")
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, chronicle narration and biographies disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chronicler := newChronicler(llmClient, db, th.Name)
	go chronicler.run(ctx)

	// ── HTTP API ──────────────────────────────────────────────────────
	registry := engine.NewRegistry()
	apiServer := &api.Server{
		Registry: registry,
		LLM:      llmClient,
		DB:       db,
		Port:     cfg.APIPort,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start()

	// ── Run ──────────────────────────────────────────────────────────
	pipelines := make([]*engine.Pipeline, len(dynasties))
	for i, d := range dynasties {
		pipelines[i] = engine.NewPipeline(d, nil)
	}
	runner := &engine.Runner{
		Registry: registry,
		Turns:    cfg.Turns,
		OnTurn: func(d *engine.Dynasty, report engine.TurnReport) error {
			if err := db.SaveDynasty(d); err != nil {
				return fmt.Errorf("save: %w", err)
			}
			chronicler.offer(d, report.Events)
			if report.Crises > 0 || report.Turn%25 == 0 {
				slog.Info("turn resolved",
					"house", d.House,
					"year", report.Year,
					"living", len(d.Tree.Living()),
					"births", report.Births,
					"deaths", report.Deaths,
					"marriages", report.Marriages,
					"crises", report.Crises,
				)
			}
			return nil
		},
	}

	fmt.Printf("\n%d houses enter the chronicle.\n", len(dynasties))
	fmt.Printf("API: http://localhost:%d/api/v1/dynasties\n", cfg.APIPort)
	fmt.Println("Running... (Ctrl+C to stop)")

	err = runner.Run(ctx, pipelines...)
	if errors.Is(err, context.Canceled) {
		slog.Info("stopped by signal")
		err = nil
	}

	// Final save on shutdown. A turn is never left half applied, so every
	// dynasty is at a turn boundary here.
	slog.Info("final save...")
	for _, d := range dynasties {
		if saveErr := db.SaveDynasty(d); saveErr != nil {
			slog.Error("final save failed", "house", d.House, "error", saveErr)
		}
		slog.Info("dynasty saved", "house", d.House, "year", d.Year, "members", d.Tree.Len(), "events", d.Log.Len())
	}
	return err
}

// loadOrFound resumes every configured house found in the store and founds
// the rest.
func loadOrFound(db *persistence.DB, cfg config.Config, th *theme.Config) ([]*engine.Dynasty, error) {
	stored, err := db.Dynasties()
	if err != nil {
		return nil, fmt.Errorf("list dynasties: %w", err)
	}

	var out []*engine.Dynasty
	for i, house := range cfg.Houses {
		seed := cfg.Seed + int64(i)
		idx := slices.IndexFunc(stored, func(m engine.Meta) bool { return m.House == house })
		if idx >= 0 {
			d, err := db.LoadDynasty(stored[idx].ID, th)
			if err != nil {
				return nil, fmt.Errorf("house %s: %w", house, err)
			}
			slog.Info("dynasty resumed", "house", house, "year", d.Year, "turn", d.Turn)
			out = append(out, d)
			continue
		}

		d, err := engine.NewDynasty(house, th, seed, engine.Founding{})
		if err != nil {
			return nil, fmt.Errorf("found house %s: %w", house, err)
		}
		founder, _ := d.Tree.Founder()
		slog.Info("dynasty founded",
			"house", house,
			"id", d.ID,
			"founder", founder.Name(),
			"year", d.Year,
			"law", d.DefaultLaw.String(),
		)
		if err := db.SaveDynasty(d); err != nil {
			return nil, fmt.Errorf("initial save %s: %w", house, err)
		}
		out = append(out, d)
	}
	return out, nil
}
