package main

import (
	"context"
	"log"
	"os"
	"time"

	"personabot/internal/api"
	"personabot/internal/config"
	"personabot/internal/entitlement"
	"personabot/internal/flow"
	"personabot/internal/orchestrator"
	"personabot/internal/quota"
	"personabot/internal/record"
	"personabot/internal/redis"
	"personabot/internal/service/ai"
	"personabot/internal/session"
	"personabot/internal/storage"
	"personabot/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("PERSONABOT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("PERSONABOT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// The event cache is optional: without it duplicate webhook deliveries
	// are not filtered, everything else still works.
	var dedupe orchestrator.EventDeduper
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, event dedupe disabled: %v", err)
	} else {
		defer rdb.Close()
		dedupe = rdb
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records := record.NewService(db)

	ledger, err := quota.NewLedger(db, dbType,
		map[quota.Kind]int{quota.KindConsultationMessage: cfg.Limits.ConsultationMessages},
		time.Duration(cfg.Limits.QuotaPeriodDays)*24*time.Hour,
	)
	if err != nil {
		log.Fatalf("init quota ledger: %v", err)
	}

	site, err := entitlement.NewClient(cfg.SiteAPI.BaseURL, cfg.SiteAPI.APIKey)
	if err != nil {
		log.Fatalf("init site api client: %v", err)
	}
	if !site.Healthy(ctx) {
		log.Printf("site api health check failed, entitlement checks may degrade")
	}

	completer, err := ai.NewService(ctx, cfg.BasicConfig.AIProvider, cfg)
	if err != nil {
		log.Fatalf("init ai service: %v", err)
	}
	analyzer, err := ai.NewAnalyzer(cfg.Providers["openai"].APIKey)
	if err != nil {
		log.Fatalf("init media analyzer: %v", err)
	}

	questions, err := flow.LoadQuestionSet(cfg.Assessment.DataPath)
	if err != nil {
		log.Fatalf("load question set: %v", err)
	}

	store := session.NewStore()
	store.StartSweeper(ctx,
		time.Duration(cfg.BasicConfig.SessionIdleTimeout)*time.Minute,
		time.Duration(cfg.BasicConfig.SessionSweepEvery)*time.Minute,
	)

	orch := orchestrator.New(
		store,
		records,
		site,
		flow.NewAssessmentController(questions, records),
		flow.NewConsultationController(ledger, completer),
		flow.NewMediaController(analyzer, records),
		dedupe,
		time.Duration(cfg.BasicConfig.EventDedupeTTLHours)*time.Hour,
	)

	dispatcher := worker.NewDispatcher(
		cfg.BasicConfig.MinWorkers,
		cfg.BasicConfig.MaxWorkers,
		cfg.BasicConfig.QueueSize,
		orch,
		time.Duration(cfg.BasicConfig.WorkerIdleTimeout)*time.Minute,
	)

	handlers := api.NewHandler(dispatcher, orch, cfg.BasicConfig.WebhookSecret, 60*time.Second)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
