package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harborview/posrecon/internal/alert"
	"github.com/harborview/posrecon/internal/api"
	"github.com/harborview/posrecon/internal/config"
	"github.com/harborview/posrecon/internal/domain"
	"github.com/harborview/posrecon/internal/ingestion"
	"github.com/harborview/posrecon/internal/recon"
	"github.com/harborview/posrecon/internal/repository"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "posrecon.db"
	}

	cfg := config.Default()
	if path := os.Getenv("RECON_CONFIG"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("load config")
		}
		log.Info().Str("path", path).Msg("loaded reconciliation config")
	}

	log.Info().Str("path", dbPath).Msg("initializing database")
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("init db")
	}
	defer db.Close()

	// Repositories.
	positionRepo := repository.NewPositionRepo(db)
	runRepo := repository.NewRunRepo(db)

	// Services.
	var recipients []string
	if v := os.Getenv("ALERT_RECIPIENTS"); v != "" {
		recipients = strings.Split(v, ",")
	}
	dispatcher := alert.NewDispatcher(os.Getenv("SLACK_WEBHOOK_URL"), recipients)
	reconSvc := recon.NewService(positionRepo, runRepo, dispatcher, cfg)
	ingestionSvc := ingestion.NewService(positionRepo)

	// Seed positions if the DB is empty.
	count, err := positionRepo.Count()
	if err != nil {
		log.Fatal().Err(err).Msg("count positions")
	}
	if count == 0 {
		log.Info().Msg("database is empty, seeding positions from testdata")
		if err := seedPositions(ingestionSvc); err != nil {
			log.Warn().Err(err).Msg("seed positions")
		}
	} else {
		log.Info().Int("positions", count).Msg("database already seeded")
	}

	router := api.NewRouter(positionRepo, runRepo, ingestionSvc, reconSvc)

	log.Info().Str("port", port).Msg("position reconciliation service listening")
	log.Info().Msg("endpoints:")
	log.Info().Msg("  POST /api/v1/positions/ingest")
	log.Info().Msg("  POST /api/v1/reconcile")
	log.Info().Msg("  GET  /api/v1/runs")
	log.Info().Msg("  GET  /api/v1/runs/{id}")
	log.Info().Msg("  GET  /api/v1/runs/{id}/breaks")
	log.Info().Msg("  GET  /api/v1/runs/{id}/report.csv")
	log.Info().Msg("  GET  /api/v1/dashboard")

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

type seedFile struct {
	name   string
	source domain.SourceID
	format string
}

func seedPositions(svc *ingestion.Service) error {
	files := []seedFile{
		{"internal_positions.csv", "internal", "internal_csv"},
		{"broker_positions.csv", "pb_meridian", "broker_csv"},
		{"custodian_holdings.json", "cust_northbank", "custodian_json"},
	}

	dir, err := findTestdataDir()
	if err != nil {
		return err
	}

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return err
		}
		result, err := svc.IngestFile(data, f.source, f.format)
		if err != nil {
			return err
		}
		log.Info().
			Str("file", f.name).
			Str("source", string(f.source)).
			Int("records", result.RecordsIngested).
			Msg("seeded")
	}
	return nil
}

func findTestdataDir() (string, error) {
	candidates := []string{"testdata"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata"),
			filepath.Join(dir, "..", "..", "testdata"),
		)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c, nil
		}
	}
	return "", os.ErrNotExist
}
