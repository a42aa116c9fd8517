package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	mode := "dry-run capable (execute_orders decides per task)"
	return []string{
		fmt.Sprintf("Log level: %s", cfg.LogLevel),
		fmt.Sprintf("Redis: %s", cfg.Redis.Addr),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Gateway: %s (account %s)", cfg.Broker.GatewayURL, cfg.Broker.AccountID),
		fmt.Sprintf("Market data: %s", marketSource(cfg)),
		fmt.Sprintf("Workers: %d, task deadline %s, prefetch budget %s",
			cfg.Consumer.Workers, cfg.Consumer.TaskDeadline(), cfg.Consumer.PrefetchBudget()),
		fmt.Sprintf("LLM: %s", llmLine(cfg)),
		fmt.Sprintf("Mode: %s", mode),
	}
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func marketSource(cfg *config.Config) string {
	if cfg.MarketData.UseBrokerData {
		return "gateway (fallback for VIX and chains)"
	}
	return "delayed fallback source"
}

func llmLine(cfg *config.Config) string {
	if cfg.LLMConf == nil {
		return "not configured"
	}
	if strings.TrimSpace(cfg.LLMConfFile) != "" {
		return cfg.LLMConfFile
	}
	return cfg.LLMConf.BaseURL
}
