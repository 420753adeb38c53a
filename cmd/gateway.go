package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/nanobot/internal/agent"
	"github.com/nextlevelbuilder/nanobot/internal/bus"
	"github.com/nextlevelbuilder/nanobot/internal/channels"
	"github.com/nextlevelbuilder/nanobot/internal/channels/discord"
	"github.com/nextlevelbuilder/nanobot/internal/channels/feishu"
	"github.com/nextlevelbuilder/nanobot/internal/channels/telegram"
	"github.com/nextlevelbuilder/nanobot/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/nanobot/internal/config"
	"github.com/nextlevelbuilder/nanobot/internal/cron"
	"github.com/nextlevelbuilder/nanobot/internal/heartbeat"
)

func runGateway() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		slog.Error("failed to create workspace", "path", workspace, "error", err)
		os.Exit(1)
	}

	runner, err := newAgentRunner(cfg)
	if err != nil {
		slog.Error("agent runner unavailable", "error", err)
		os.Exit(1)
	}
	if _, lookErr := exec.LookPath(cfg.Agent.Command); lookErr != nil {
		slog.Warn("agent command not found on PATH, turns will fail until it is installed",
			"command", cfg.Agent.Command)
	}

	msgBus := bus.NewWithSize(cfg.Bus.QueueSize)

	channelMgr := channels.NewManager(msgBus)
	registerChannels(channelMgr, cfg, msgBus)

	cronSvc := cron.NewService(cfg.CronStorePath(), makeCronJobHandler(runner, msgBus))
	heartbeatSvc := heartbeat.NewService(
		workspace,
		time.Duration(cfg.Heartbeat.IntervalMinutes)*time.Minute,
		cfg.Heartbeat.Enabled,
		makeHeartbeatHandler(runner),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}
	if err := cronSvc.Start(ctx); err != nil {
		slog.Warn("cron service failed to start", "error", err)
	}
	heartbeatSvc.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		consumeInboundMessages(groupCtx, msgBus, runner)
		return nil
	})

	slog.Info("nanobot gateway started",
		"version", Version,
		"workspace", workspace,
		"channels", channelMgr.GetEnabledChannels(),
	)

	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	channelMgr.StopAll(context.Background())
	cronSvc.Stop()
	heartbeatSvc.Stop()
	cancel()
	_ = group.Wait()
}

// newAgentRunner builds the subprocess runner from config.
func newAgentRunner(cfg *config.Config) (agent.Runner, error) {
	return agent.NewCommandRunner(
		cfg.Agent.Command,
		cfg.Agent.Args,
		time.Duration(cfg.Agent.TimeoutSeconds)*time.Second,
	)
}

// registerChannels builds every enabled channel from config. A channel whose
// constructor fails is skipped with a warning; the gateway still runs with
// the rest.
func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus) {
	if cfg.Channels.Telegram.Enabled {
		if ch, err := telegram.New(cfg.Channels.Telegram, msgBus); err != nil {
			slog.Warn("telegram channel skipped", "error", err)
		} else {
			mgr.RegisterChannel("telegram", ch)
			slog.Info("telegram channel enabled")
		}
	}

	if cfg.Channels.Discord.Enabled {
		if ch, err := discord.New(cfg.Channels.Discord, msgBus); err != nil {
			slog.Warn("discord channel skipped", "error", err)
		} else {
			mgr.RegisterChannel("discord", ch)
			slog.Info("discord channel enabled")
		}
	}

	if cfg.Channels.WhatsApp.Enabled {
		if ch, err := whatsapp.New(cfg.Channels.WhatsApp, msgBus); err != nil {
			slog.Warn("whatsapp channel skipped", "error", err)
		} else {
			mgr.RegisterChannel("whatsapp", ch)
			slog.Info("whatsapp channel enabled")
		}
	}

	if cfg.Channels.Feishu.Enabled {
		if ch, err := feishu.New(cfg.Channels.Feishu, msgBus); err != nil {
			slog.Warn("feishu channel skipped", "error", err)
		} else {
			mgr.RegisterChannel("feishu", ch)
			slog.Info("feishu channel enabled")
		}
	}
}
