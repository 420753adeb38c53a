package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/nanobot/internal/agent"
	"github.com/nextlevelbuilder/nanobot/internal/bus"
	"github.com/nextlevelbuilder/nanobot/internal/cron"
	"github.com/nextlevelbuilder/nanobot/internal/heartbeat"
	"github.com/nextlevelbuilder/nanobot/internal/sessions"
)

// makeCronJobHandler runs a job's agent turn in the job's own session. When
// the job asks for delivery, the non-empty response is published outbound.
func makeCronJobHandler(runner agent.Runner, msgBus *bus.MessageBus) cron.JobHandler {
	return func(job *cron.Job) (string, error) {
		sessionKey := sessions.BuildCronKey(job.ID)

		response, err := runner.ProcessDirect(
			context.Background(),
			job.Payload.Message,
			sessionKey,
			"cron",
			job.ID,
		)
		if err != nil {
			return "", err
		}

		if msgBus != nil && job.Payload.Deliver && job.Payload.Channel != "" && job.Payload.To != "" && response != "" {
			msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: job.Payload.Channel,
				ChatID:  job.Payload.To,
				Content: response,
			})
		} else if response != "" {
			slog.Debug("cron job response not delivered", "id", job.ID, "chars", len(response))
		}

		return response, nil
	}
}

// makeHeartbeatHandler runs a heartbeat turn in the shared heartbeat session.
func makeHeartbeatHandler(runner agent.Runner) heartbeat.Handler {
	return func(prompt string) (string, error) {
		return runner.ProcessDirect(
			context.Background(),
			prompt,
			sessions.HeartbeatKey,
			"heartbeat",
			"",
		)
	}
}
