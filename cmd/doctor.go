package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/nanobot/internal/config"
	"github.com/nextlevelbuilder/nanobot/internal/cron"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("nanobot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Agent
	fmt.Println()
	fmt.Println("  Agent:")
	if cfg.Agent.Command == "" {
		fmt.Printf("    %-12s (not configured)\n", "Command:")
	} else if path, lookErr := exec.LookPath(cfg.Agent.Command); lookErr != nil {
		fmt.Printf("    %-12s %s (NOT FOUND on PATH)\n", "Command:", cfg.Agent.Command)
	} else {
		fmt.Printf("    %-12s %s\n", "Command:", path)
	}

	// Channels
	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")
	checkChannel("WhatsApp", cfg.Channels.WhatsApp.Enabled, cfg.Channels.WhatsApp.BridgeURL != "")
	checkChannel("Feishu", cfg.Channels.Feishu.Enabled, cfg.Channels.Feishu.AppID != "")

	// Cron store
	fmt.Println()
	storePath := cfg.CronStorePath()
	fmt.Printf("  Cron store: %s", storePath)
	svc := cron.NewService(storePath, nil)
	if loadErr := svc.Load(); loadErr != nil {
		fmt.Printf(" (LOAD FAILED: %s)\n", loadErr)
	} else {
		st := svc.Status()
		fmt.Printf(" (%d jobs, %d enabled", st.Jobs, st.Enabled)
		if st.NextWakeAtMs != nil {
			fmt.Printf(", next wake %s", time.UnixMilli(*st.NextWakeAtMs).Format(time.RFC3339))
		}
		fmt.Println(")")
	}

	// Heartbeat
	if cfg.Heartbeat.Enabled {
		fmt.Printf("  Heartbeat:  enabled (every %dm)\n", cfg.Heartbeat.IntervalMinutes)
	} else {
		fmt.Println("  Heartbeat:  disabled")
	}

	// Workspace
	fmt.Println()
	ws := cfg.WorkspacePath()
	fmt.Printf("  Workspace: %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND, created on start)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}
