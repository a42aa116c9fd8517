package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/cli"
	"odte-agent/internal/config"
	"odte-agent/internal/decision"
	"odte-agent/internal/prefetch"
	"odte-agent/internal/processor"
	"odte-agent/internal/queue"
	"odte-agent/internal/svc"
)

var configFile = flag.String("f", "etc/agent.yaml", "the config file")

func main() {
	flag.Parse()

	logx.MustSetup(logx.LogConf{})
	logx.DisableStat()

	cfg := config.MustLoad(*configFile)
	svcCtx := svc.NewServiceContext(*cfg)
	defer svcCtx.Close()

	cli.LogConfigSummary(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logx.Infof("received signal %s, shutting down", sig)
		cancel()
	}()

	// A dead gateway is survivable (fail path per task); say so up front.
	if ok, err := svcCtx.NewBrokerClient().CheckHealth(ctx); err != nil {
		logx.Errorf("broker gateway health check failed: %v", err)
	} else if !ok {
		logx.Error("broker gateway session is not authenticated")
	}

	if stats, err := svcCtx.Queue.Stats(ctx); err == nil {
		logx.Infof("queue stats at startup: %v", stats)
	}

	go svcCtx.Scheduler.Run(ctx)

	monitor := processor.NewFillMonitor(svcCtx.Trades, svcCtx.NewBrokerClient(),
		processor.WithMonitorInterval(cfg.Consumer.MonitorPoll()))
	go monitor.Run(ctx)

	consumer := queue.NewConsumer(svcCtx.Queue, queue.ConsumerConfig{
		Workers:      cfg.Consumer.Workers,
		PopTimeout:   cfg.Consumer.PopTimeout(),
		TaskDeadline: cfg.Consumer.TaskDeadline(),
	}, func(worker int) queue.Handler {
		// Each worker owns its broker client; the adapter is not safe to
		// share across workers.
		brokerClient := svcCtx.NewBrokerClient()
		engine := prefetch.NewEngine(svcCtx.Market, brokerClient,
			prefetch.WithBudget(cfg.Consumer.PrefetchBudget()))
		runner := decision.NewRunner(svcCtx.LLMClient,
			decision.WithTimeout(cfg.Consumer.LLMTimeout()))
		proc := processor.New(processor.Deps{
			Signals:   svcCtx.Signals,
			Trades:    svcCtx.Trades,
			Config:    svcCtx.RTConfig,
			Prompts:   svcCtx.PromptSvc,
			Prefetch:  engine,
			Runner:    runner,
			Broker:    brokerClient,
			Market:    svcCtx.Market,
			Scheduler: svcCtx.Scheduler,
			Journal:   svcCtx.Journal,
		})
		return proc.Process
	})

	logx.Info("starting signal consumer")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.Errorf("consumer exited: %v", err)
		os.Exit(1)
	}
	logx.Info("consumer stopped")
}
