package svc

import (
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"odte-agent/internal/broker"
	"odte-agent/internal/config"
	"odte-agent/internal/market"
	"odte-agent/internal/model"
	"odte-agent/internal/prompt"
	"odte-agent/internal/queue"
	"odte-agent/internal/rtconfig"
	"odte-agent/pkg/journal"
	llmpkg "odte-agent/pkg/llm"
)

// ServiceContext wires shared dependencies. The broker client is deliberately
// NOT shared: each consumer worker builds its own via NewBrokerClient.
type ServiceContext struct {
	Config config.Config

	Redis     redis.UniversalClient
	DBConn    sqlx.SqlConn
	Signals   model.SignalsModel
	Trades    model.TradesModel
	Prompts   model.PromptsModel
	PromptSvc *prompt.Service

	Queue     *queue.Queue
	Scheduler *queue.Scheduler
	RTConfig  *rtconfig.Store

	LLMClient llmpkg.LLMClient
	Market    *market.Provider
	Journal   *journal.Writer
}

// NewServiceContext builds the shared context. Construction failures are
// config_invalid and fatal.
func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{Config: c}

	svc.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})

	conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
	svc.DBConn = conn
	svc.Signals = model.NewSignalsModel(conn)
	svc.Trades = model.NewTradesModel(conn)
	svc.Prompts = model.NewPromptsModel(conn)
	svc.PromptSvc = prompt.NewService(svc.Prompts)

	svc.Queue = queue.New(svc.Redis)
	svc.Scheduler = queue.NewScheduler(svc.Redis, svc.Queue,
		queue.WithPollInterval(c.Consumer.SchedulerPoll()))
	svc.RTConfig = rtconfig.NewStore(svc.Redis)

	llmClient, err := llmpkg.NewClient(c.LLMConf)
	if err != nil {
		log.Fatalf("initialise llm client: %v", err)
	}
	svc.LLMClient = llmClient

	quoteOpts := []market.QuoteOption{}
	if c.MarketData.QuoteBaseURL != "" {
		quoteOpts = append(quoteOpts, market.WithQuoteBaseURL(c.MarketData.QuoteBaseURL))
	}
	marketOpts := []market.ProviderOption{market.WithCache(svc.Redis)}
	if c.MarketData.UseBrokerData {
		// Read-only snapshot endpoints; this client never carries order state.
		marketOpts = append(marketOpts, market.WithGateway(svc.NewBrokerClient()))
	}
	svc.Market = market.NewProvider(market.NewQuoteClient(quoteOpts...), marketOpts...)

	svc.Journal = journal.NewWriter(c.JournalDir)
	return svc
}

// NewBrokerClient builds a fresh gateway client. Call once per worker.
func (s *ServiceContext) NewBrokerClient() *broker.Client {
	return broker.NewClient(s.Config.Broker.GatewayURL, s.Config.Broker.AccountID,
		broker.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}))
}

// Close releases shared resources.
func (s *ServiceContext) Close() {
	if s.LLMClient != nil {
		_ = s.LLMClient.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}
