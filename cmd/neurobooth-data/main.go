package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/rmanoh01/neurobooth-analysis-tools/internal/config"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/database"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/export"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/logger"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/repository"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/service"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting neurobooth-data download")

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	repo := repository.NewTableRepository(db, log)
	repo.MaxPolls = cfg.Refresh.MaxPolls
	repo.PollInterval = time.Duration(cfg.Refresh.PollIntervalSec) * time.Second

	results := store.NewMemoryStore()
	svc := service.NewDownloadService(repo, results, log)

	if err := svc.Download(); err != nil {
		log.Fatal("Download failed", zap.Error(err))
	}

	testSubjects, err := svc.TestSubjects(true)
	if err != nil {
		log.Fatal("Failed to resolve test subjects", zap.Error(err))
	}
	log.Info("Resolved test subjects", zap.Int("count", len(testSubjects)))

	if cfg.Export.Enabled {
		for _, name := range results.Names() {
			table, err := results.Get(name)
			if err != nil {
				log.Fatal("Missing result table", zap.String("table", name), zap.Error(err))
			}
			path := filepath.Join(cfg.Export.Dir, name+".xlsx")
			if err := export.WriteFrameFile(table, name, path); err != nil {
				log.Fatal("Failed to export table", zap.String("table", name), zap.Error(err))
			}
			log.Info("Exported table", zap.String("table", name), zap.String("path", path))
		}
	}

	log.Info("Done")
}
