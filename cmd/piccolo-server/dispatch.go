package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/TeamPiccolo/piccolo3-server/internal/controller"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/power"
)

// dispatchJob hands a job yielded by the scheduler's runnable-job
// iteration to whichever collaborator owns it: record/dark/autointegrate
// commands go to the acquisition controller, the synthetic power_off/
// power_on crossing jobs go to the MQTT signaller. This is the
// message-oriented glue spec.md §1 calls out between the async
// scheduler poller and the synchronous controller entry points.
func dispatchJob(ctx context.Context, ctrl *controller.Controller, signaller *power.Signaller, log *slog.Logger, job piccolospec.Job) {
	switch job.Command {
	case "record_sequence":
		args := controller.RecordArgs{
			Run:       jobString(job.Args, 0, ""),
			NSequence: int(jobFloat(job.Args, 1, 1)),
			Auto:      int(jobFloat(job.Args, 2, -1)),
			Delay:     time.Duration(jobFloat(job.Args, 3, 0) * float64(time.Second)),
			Target:    jobFloat(job.Args, 4, 80),
		}
		if err := ctrl.RecordSequence(ctx, args); err != nil {
			log.Error("scheduled record_sequence failed", "error", err)
		}
	case "record_dark":
		dark := controller.DarkArgs{Run: jobString(job.Args, 0, "")}
		if err := ctrl.RecordDark(ctx, dark); err != nil {
			log.Error("scheduled record_dark failed", "error", err)
		}
	case "autointegrate":
		if err := ctrl.Autointegrate(ctx, jobFloat(job.Args, 0, 80)); err != nil {
			log.Error("scheduled autointegrate failed", "error", err)
		}
	case "power_off", "power_on":
		if signaller != nil {
			signaller.HandleJob(ctx, job)
		}
	default:
		log.Warn("unknown scheduled job command", "command", job.Command)
	}
}

func jobString(args []any, i int, def string) string {
	if i >= len(args) {
		return def
	}
	if s, ok := args[i].(string); ok {
		return s
	}
	return def
}

func jobFloat(args []any, i int, def float64) float64 {
	if i >= len(args) {
		return def
	}
	switch v := args[i].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
