package main

import (
	"context"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/care-records/internal/async"
	"github.com/joseph-ayodele/care-records/internal/autopop"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/events"
	"github.com/joseph-ayodele/care-records/internal/export"
	"github.com/joseph-ayodele/care-records/internal/extraction"
	"github.com/joseph-ayodele/care-records/internal/ingest"
	"github.com/joseph-ayodele/care-records/internal/llm/openai"
	"github.com/joseph-ayodele/care-records/internal/matching"
	"github.com/joseph-ayodele/care-records/internal/pdf"
	"github.com/joseph-ayodele/care-records/internal/pipeline"
	"github.com/joseph-ayodele/care-records/internal/reconcile"
	"github.com/joseph-ayodele/care-records/internal/repository"
	"github.com/joseph-ayodele/care-records/internal/server"
	"github.com/joseph-ayodele/care-records/internal/storage"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg    *common.Config
	logger *slog.Logger

	drv  *entsql.Driver
	pool *pgxpool.Pool

	docs        repository.DocumentRepository
	medications repository.MedicationRepository
	recs        repository.RecommendationRepository

	publisher events.Publisher
	broker    async.Broker
}

// openApp connects to the database. Everything else is built on demand so
// commands like export never need model credentials.
func openApp(ctx context.Context, cfg *common.Config, migrate bool) (*app, error) {
	if err := requireDB(cfg); err != nil {
		return nil, err
	}
	logger := slog.Default()
	drv, pool, err := server.ConnectDB(ctx, cfg.Database, migrate, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{
		cfg:         cfg,
		logger:      logger,
		drv:         drv,
		pool:        pool,
		docs:        repository.NewDocumentRepository(drv, logger),
		medications: repository.NewMedicationRepository(drv, logger),
		recs:        repository.NewRecommendationRepository(drv, logger),
	}, nil
}

func (a *app) Close() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warn("queue.close.failed", "error", err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("events.close.failed", "error", err)
		}
	}
	server.CloseDB(a.drv, a.pool, a.logger)
}

func (a *app) events() events.Publisher {
	if a.publisher == nil {
		a.publisher = events.New(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.logger)
	}
	return a.publisher
}

// queue returns the Redis broker when REDIS_ADDR is set, the in-process one otherwise.
func (a *app) queue(ctx context.Context) (async.Broker, error) {
	if a.broker != nil {
		return a.broker, nil
	}
	if a.cfg.Redis.Addr == "" {
		a.logger.Info("queue.memory", "reason", "REDIS_ADDR not set")
		a.broker = async.NewMemoryBroker(a.logger)
		return a.broker, nil
	}
	rdb, err := async.DialRedis(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.broker = async.NewRedisBroker(rdb, a.cfg.Redis.Prefix, a.logger)
	return a.broker, nil
}

func (a *app) fetcher() (storage.Fetcher, error) {
	maxBytes := int64(a.cfg.Storage.MaxDownloadMB) << 20
	var azure storage.Fetcher
	if a.cfg.Storage.AzureConnectionString != "" {
		az, err := storage.NewAzureFetcher(a.cfg.Storage.AzureConnectionString, a.cfg.Storage.AzureContainer, maxBytes, a.logger)
		if err != nil {
			return nil, fmt.Errorf("azure storage: %w", err)
		}
		azure = az
	}
	return storage.NewRouter(
		storage.NewHTTPFetcher(a.cfg.Storage.HTTPTimeout, maxBytes),
		azure,
		storage.NewLocalFetcher(maxBytes),
		a.logger,
	), nil
}

// processor wires extraction, matching, reconciliation and auto-population.
func (a *app) processor() (*pipeline.Processor, error) {
	if a.cfg.LLM.APIKey == "" {
		return nil, common.NewAppError(common.KindConfig, "OPENAI_API_KEY is required", common.ErrInvalidInput)
	}
	fetch, err := a.fetcher()
	if err != nil {
		return nil, err
	}
	model := openai.NewClient(openai.Config{
		APIKey:      a.cfg.LLM.APIKey,
		BaseURL:     a.cfg.LLM.BaseURL,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
		Timeout:     a.cfg.LLM.Timeout,
		Stream:      true,
	}, a.logger)
	tools := pdf.NewExtractor(pdf.Config{
		Pdftotext: a.cfg.OCR.Pdftotext,
		Pdftoppm:  a.cfg.OCR.Pdftoppm,
		DPI:       a.cfg.OCR.DPI,
		MaxPages:  a.cfg.OCR.MaxPages,
	}, a.logger)
	adapter := extraction.NewAdapter(model, fetch, tools, extraction.Config{
		MaxTextChars: a.cfg.Extraction.MaxTextChars,
		MinTextChars: a.cfg.Extraction.MinTextChars,
		DomainHint:   pipeline.DefaultDomainHint,
	}, a.logger)

	matcher := matching.NewEngine(a.medications, a.logger)
	reconciler := reconcile.NewEngine(a.medications, matcher, a.logger)
	populator := autopop.NewPopulator(
		repository.NewProviderRepository(a.drv, a.logger),
		repository.NewJournalRepository(a.drv, a.logger),
		a.logger,
	)
	return pipeline.NewProcessor(adapter, a.docs, populator, reconciler, a.recs, a.logger,
		pipeline.WithPublisher(a.events()),
	), nil
}

func (a *app) exporter() *export.Service {
	return export.NewService(a.recs, a.logger)
}

func (a *app) inbox(ctx context.Context, o ownerFlags) (*ingest.Inbox, error) {
	owner, err := o.resolve(a.cfg.Inbox)
	if err != nil {
		return nil, err
	}
	q, err := a.queue(ctx)
	if err != nil {
		return nil, err
	}
	return ingest.NewInbox(a.docs, q, owner, a.logger), nil
}

// ownerFlags names who a registered document belongs to. Empty flags fall
// back to the INBOX_* settings.
type ownerFlags struct {
	family  string
	patient string
	user    string
}

func (o ownerFlags) resolve(def common.InboxConfig) (ingest.Owner, error) {
	family := firstNonEmpty(o.family, def.FamilyID)
	patient := firstNonEmpty(o.patient, def.PatientID)
	user := firstNonEmpty(o.user, def.UserID)

	var owner ingest.Owner
	id, err := uuid.Parse(family)
	if err != nil {
		return owner, common.NewAppError(common.KindConfig, "a family id (--family or INBOX_FAMILY_ID) is required", common.ErrInvalidInput)
	}
	owner.FamilyID = id
	if patient != "" {
		pid, err := uuid.Parse(patient)
		if err != nil {
			return owner, common.NewAppError(common.KindConfig, fmt.Sprintf("invalid patient id %q", patient), common.ErrInvalidInput)
		}
		owner.PatientID = &pid
	}
	owner.UserID = user
	return owner, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
