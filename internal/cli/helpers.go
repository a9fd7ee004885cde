package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/stackmem/stackmem/internal/archive"
	"github.com/stackmem/stackmem/internal/config"
	"github.com/stackmem/stackmem/internal/db"
	"github.com/stackmem/stackmem/internal/frame"
	"github.com/stackmem/stackmem/internal/provider"
	"github.com/stackmem/stackmem/internal/retrieval"
	"github.com/stackmem/stackmem/internal/scoring"
	"github.com/stackmem/stackmem/internal/tier"
)

// findRoot walks up from the working directory looking for a .stackmem
// directory.
func findRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".stackmem")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no .stackmem directory found; run 'stackmem init' first")
		}
		dir = parent
	}
}

// app bundles the wired components a command needs.
type app struct {
	root      string
	cfg       config.Config
	db        *db.DB
	frames    *frame.Store
	manager   *tier.Manager
	scorer    *scoring.Engine
	archiver  *archive.Archiver
	audit     *retrieval.AuditStore
	retriever *retrieval.Engine
}

// openApp locates the project, loads config, opens the database, and wires
// the core components.
func openApp() (*app, error) {
	root, err := findRoot()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(config.ProjectDBPath(root))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	frames := frame.NewStore(database)
	manager := tier.NewDefaultManager(database, config.ProjectTierDir(root))
	scorer := scoring.NewEngine(cfg.Scoring.ImpactSaturation, cfg.Scoring.ReferenceSaturation)
	audit := retrieval.NewAuditStore(database)

	apiKey := cfg.Keys.Anthropic
	if cfg.Retrieval.Provider == provider.NameOpenAI {
		apiKey = cfg.Keys.OpenAI
	}
	p, err := provider.New(cfg.Retrieval.Provider, apiKey)
	if err != nil {
		return nil, err
	}

	tokenizer, err := retrieval.NewTokenizer()
	if err != nil {
		// Offline: token counts fall back to a length estimate.
		log.Printf("[cli] tokenizer unavailable, estimating token counts: %v", err)
		tokenizer = nil
	}

	return &app{
		root:      root,
		cfg:       cfg,
		db:        database,
		frames:    frames,
		manager:   manager,
		scorer:    scorer,
		archiver:  archive.NewArchiver(frames, scorer, manager),
		audit:     audit,
		retriever: retrieval.NewEngine(frames, audit, scorer, tokenizer, p),
	}, nil
}

func (a *app) close() {
	_ = a.db.Close()
}
