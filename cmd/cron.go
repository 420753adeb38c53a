package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/nanobot/internal/config"
	"github.com/nextlevelbuilder/nanobot/internal/cron"
)

// openCronService loads the job store for out-of-process management. The
// running gateway reloads the store on start, so CLI edits are picked up on
// the next restart (or immediately when the gateway is not running).
func openCronService() (*cron.Service, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	svc := cron.NewService(cfg.CronStorePath(), nil)
	if err := svc.Load(); err != nil {
		return nil, fmt.Errorf("load cron store: %w", err)
	}
	return svc, nil
}

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronAddCmd())
	cmd.AddCommand(cronRemoveCmd())
	cmd.AddCommand(cronEnableCmd())
	cmd.AddCommand(cronRunCmd())
	return cmd
}

func cronListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			svc, err := openCronService()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			jobs := svc.ListJobs(all)
			if len(jobs) == 0 {
				fmt.Println("no jobs")
				return
			}
			for _, job := range jobs {
				next := "-"
				if job.State.NextRunAtMs != nil {
					next = time.UnixMilli(*job.State.NextRunAtMs).Format(time.RFC3339)
				}
				status := job.State.LastStatus
				if status == "" {
					status = "-"
				}
				fmt.Printf("%s  %-20s  %-5s  enabled=%-5v  next=%s  last=%s\n",
					job.ID, job.Name, job.Schedule.Kind, job.Enabled, next, status)
			}
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled jobs")
	return cmd
}

func cronAddCmd() *cobra.Command {
	var (
		name           string
		message        string
		at             string
		every          time.Duration
		expr           string
		tz             string
		deliver        bool
		channel        string
		to             string
		deleteAfterRun bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job (one of --at, --every, --cron)",
		Run: func(cmd *cobra.Command, args []string) {
			sched, err := buildSchedule(at, every, expr, tz)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			svc, err := openCronService()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			job, err := svc.AddJob(name, sched, message, deliver, channel, to, deleteAfterRun)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("added job %s (%s)\n", job.ID, job.Name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&message, "message", "", "agent prompt the job fires")
	cmd.Flags().StringVar(&at, "at", "", "one-shot fire time (RFC3339)")
	cmd.Flags().DurationVar(&every, "every", 0, "fixed interval (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&expr, "cron", "", "5-field cron expression")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for --cron (default UTC)")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "deliver the response to a channel")
	cmd.Flags().StringVar(&channel, "channel", "", "delivery channel name")
	cmd.Flags().StringVar(&to, "to", "", "delivery chat id")
	cmd.Flags().BoolVar(&deleteAfterRun, "delete-after-run", false, "remove a one-shot job after it fires")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("message")
	return cmd
}

func buildSchedule(at string, every time.Duration, expr, tz string) (cron.Schedule, error) {
	switch {
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("invalid --at time: %w", err)
		}
		return cron.Schedule{Kind: cron.KindAt, AtMs: t.UnixMilli()}, nil
	case every > 0:
		return cron.Schedule{Kind: cron.KindEvery, EveryMs: every.Milliseconds()}, nil
	case expr != "":
		return cron.Schedule{Kind: cron.KindCron, Expr: expr, TZ: tz}, nil
	default:
		return cron.Schedule{}, fmt.Errorf("one of --at, --every, --cron is required")
	}
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, err := openCronService()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if !svc.RemoveJob(args[0]) {
				fmt.Fprintf(os.Stderr, "job %s not found\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("removed job %s\n", args[0])
		},
	}
}

func cronEnableCmd() *cobra.Command {
	var disable bool
	cmd := &cobra.Command{
		Use:   "enable <id>",
		Short: "Enable or disable a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, err := openCronService()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			job, ok := svc.EnableJob(args[0], !disable)
			if !ok {
				fmt.Fprintf(os.Stderr, "job %s not found\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("job %s enabled=%v\n", job.ID, job.Enabled)
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "disable instead of enable")
	return cmd
}

func cronRunCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Fire a job immediately, outside its schedule",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				fmt.Fprintln(os.Stderr, "usage: nanobot cron run <id>")
				os.Exit(1)
			}

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			runner, err := newAgentRunner(cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			// A CLI-run job executes the agent turn in this process; delivery
			// is skipped since no channels are connected.
			svc := cron.NewService(cfg.CronStorePath(), makeCronJobHandler(runner, nil))
			if err := svc.Load(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if !svc.RunJob(args[0], force) {
				fmt.Fprintf(os.Stderr, "job %s not found or disabled (use --force)\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("ran job %s\n", args[0])
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run even when the job is disabled")
	return cmd
}
