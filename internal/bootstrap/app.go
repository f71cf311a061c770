package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"finsight-backend/internal/analysis"
	googleauth "finsight-backend/internal/auth"
	"finsight-backend/internal/documents"
	"finsight-backend/internal/narrative"
	narrativeopenai "finsight-backend/internal/narrative/openai"
	"finsight-backend/internal/pipeline"
	"finsight-backend/internal/queue"
	"finsight-backend/internal/reports"
	"finsight-backend/internal/risk"
	"finsight-backend/internal/shared/config"
	"finsight-backend/internal/shared/server"
	"finsight-backend/internal/shared/storage/db"
	"finsight-backend/internal/shared/storage/object"
	localstore "finsight-backend/internal/shared/storage/object/local"
	s3store "finsight-backend/internal/shared/storage/object/s3"
	"finsight-backend/internal/strategy"
	"finsight-backend/internal/users"
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	Queue            queue.Client
	Pipeline         *pipeline.Pipeline
	DocumentsRepo    documents.DocumentsRepo
	ReportsRepo      reports.Repo
	UsersRepo        users.Repo
	DocumentsService *documents.Service
	ReportsService   *reports.Service
	ReportProcessor  ReportProcessor
	UsersService     *users.Service
	DocumentsHandler *documents.Handler
	ReportsHandler   *reports.Handler
	UsersHandler     *users.Handler
	GoogleAuth       *googleauth.GoogleService
}

// ReportProcessor allows callers to override report processing for tests.
type ReportProcessor interface {
	Process(ctx context.Context, reportID string) error
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		ReportHandler:   app.ReportsHandler,
		UserHandler:     app.UsersHandler,
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	defaults := db.DefaultServerOptions()
	if cfg.DBPoolProfile == "worker" {
		defaults = db.DefaultWorkerOptions()
	}
	opts := db.OptionsFromEnv(defaults)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("FS_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// buildAnnotator selects the narrative provider. Annotation is optional and
// every failure path falls back to numbers-only output.
func buildAnnotator(cfg config.Config) (narrative.Annotator, error) {
	if cfg.NarrativeProvider != "openai" {
		return narrative.Disabled{}, nil
	}
	opts := []narrativeopenai.Option{
		narrativeopenai.WithTemperature(float32(cfg.NarrativeTemperature)),
	}
	if cfg.NarrativeBaseURL != "" {
		opts = append(opts, narrativeopenai.WithBaseURL(cfg.NarrativeBaseURL))
	}
	for stage, override := range cfg.NarrativeStages {
		if override.Model != "" {
			opts = append(opts, narrativeopenai.WithStageModel(stage, override.Model))
		}
		if override.HasTemperature {
			opts = append(opts, narrativeopenai.WithStageTemperature(stage, float32(override.Temperature)))
		}
	}
	return narrativeopenai.NewClient(os.Getenv("NARRATIVE_API_KEY"), cfg.NarrativeModel, opts...)
}

// buildPipeline maps the configured threshold bands onto the stage types.
func buildPipeline(cfg config.Config, annotator narrative.Annotator) *pipeline.Pipeline {
	th := cfg.Thresholds

	bands := analysis.DefaultBands()
	bands.StrongGrowth = th.StrongGrowth
	bands.DeclineGrowth = th.DeclineGrowth
	bands.ExcellentMargin = th.ExcellentMargin
	bands.LowMargin = th.LowMargin
	bands.HighExpenseRatio = th.HighExpenseRatio

	riskTh := risk.DefaultThresholds()
	riskTh.VolatilityLow = th.VolatilityLow
	riskTh.VolatilityHigh = th.VolatilityHigh
	riskTh.DebtRatioLow = th.DebtRatioLow
	riskTh.DebtRatioHigh = th.DebtRatioHigh
	riskTh.CurrentRatioLow = th.CurrentRatioLow
	riskTh.CurrentRatioHigh = th.CurrentRatioHigh
	riskTh.ScoreLowBelow = th.RiskScoreLow
	riskTh.ScoreMediumBelow = th.RiskScoreMedium
	riskTh.WeakMargin = th.LowMargin

	cutoffs := strategy.DefaultCutoffs()
	cutoffs.StrongMargin = th.ExcellentMargin

	opts := pipeline.DefaultOptions()
	if cfg.ExtractConcurrency > 0 {
		opts.ExtractConcurrency = cfg.ExtractConcurrency
	}
	if cfg.PerFileTimeout > 0 {
		opts.PerFileTimeout = cfg.PerFileTimeout
	}
	if cfg.StageTimeout > 0 {
		opts.StageTimeout = cfg.StageTimeout
	}

	return &pipeline.Pipeline{
		Analysis:  analysis.New(bands),
		Risk:      risk.New(riskTh),
		Strategy:  strategy.New(cutoffs),
		Annotator: annotator,
		Options:   opts,
	}
}

func buildServices(app *App) error {
	var docRepo documents.DocumentsRepo
	var reportRepo reports.Repo
	var userRepo users.Repo

	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		reportRepo = &reports.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
	} else {
		docRepo = documents.NewMemoryRepo()
		reportRepo = reports.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
	}

	docSvc := &documents.Service{
		Store:           app.Store,
		Repo:            docRepo,
		StorageProvider: app.Config.ObjectStoreType,
	}

	annotator, err := buildAnnotator(app.Config)
	if err != nil {
		return err
	}
	app.Pipeline = buildPipeline(app.Config, annotator)

	reportSvc := &reports.Service{
		Repo:     reportRepo,
		DocRepo:  docRepo,
		Store:    app.Store,
		Pipeline: app.Pipeline,
		Queue:    app.Queue,
	}

	userSvc := users.NewService(userRepo)
	googleAuthSvc := googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
	)

	app.DocumentsRepo = docRepo
	app.ReportsRepo = reportRepo
	app.UsersRepo = userRepo
	app.DocumentsService = docSvc
	app.ReportsService = reportSvc
	app.ReportProcessor = reportSvc
	app.UsersService = userSvc
	app.DocumentsHandler = documents.NewHandler(docSvc)
	app.ReportsHandler = reports.NewHandler(reportSvc)
	app.UsersHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleAuthSvc

	if app.DocumentsHandler == nil || app.ReportsHandler == nil {
		return errors.New("failed to initialize handlers")
	}

	return nil
}
