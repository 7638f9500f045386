package power

import (
	"context"
	"log/slog"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

const (
	cmdPowerOff = "power_off"
	cmdPowerOn  = "power_on"
)

// Signaller turns the scheduler's synthetic power_off/power_on jobs
// into a retained MQTT publish on {prefix}/power, purely a consumer of
// the scheduler's runnable-job stream: it adds no scheduling logic of
// its own.
type Signaller struct {
	client Publisher
	topic  string
	log    *slog.Logger
}

// NewSignaller returns a Signaller publishing to topicPrefix+"/power".
func NewSignaller(client Publisher, topicPrefix string, log *slog.Logger) *Signaller {
	return &Signaller{client: client, topic: topicPrefix + "/power", log: log}
}

// HandleJob inspects a job yielded by the scheduler and, if it is one
// of the synthetic power crossing jobs, publishes the corresponding
// retained state. Any other job is silently ignored.
func (s *Signaller) HandleJob(ctx context.Context, job piccolospec.Job) {
	var payload string
	switch job.Command {
	case cmdPowerOff:
		payload = "off"
	case cmdPowerOn:
		payload = "on"
	default:
		return
	}

	if err := s.client.Publish(ctx, s.topic, payload, true); err != nil {
		s.log.Error("publishing power state", "topic", s.topic, "payload", payload, "error", err)
		return
	}
	s.log.Info("published power state", "topic", s.topic, "payload", payload)
}

// HandleJobs runs HandleJob over every job in a RunnableJobs batch.
func (s *Signaller) HandleJobs(ctx context.Context, jobs []piccolospec.Job) {
	for _, j := range jobs {
		s.HandleJob(ctx, j)
	}
}
