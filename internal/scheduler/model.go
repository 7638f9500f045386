package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler/entities"
)

const timeOfDayLayout = "15:04:05"

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("parsing time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

func formatTimeOfDay(d time.Duration) string {
	d = d % (24 * time.Hour)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func entityToJob(e entities.JobEntity) (*piccolospec.ScheduledJob, error) {
	var args []any
	if e.ArgsJSON != "" {
		if err := json.Unmarshal([]byte(e.ArgsJSON), &args); err != nil {
			return nil, fmt.Errorf("decoding job %d args: %w", e.ID, err)
		}
	}
	job := &piccolospec.ScheduledJob{
		ID:              e.ID,
		Job:             piccolospec.Job{Command: e.Command, Args: args},
		StartTime:       e.StartTime,
		NextTime:        e.NextTime,
		EndTime:         e.EndTime,
		IgnoreQuietTime: e.IgnoreQuietTime,
		Status:          piccolospec.JobStatus(e.Status),
	}
	if e.IntervalSeconds != nil {
		d := time.Duration(*e.IntervalSeconds * float64(time.Second))
		job.Interval = &d
	}
	return job, nil
}

func jobToEntity(j *piccolospec.ScheduledJob) (entities.JobEntity, error) {
	argsJSON, err := json.Marshal(j.Job.Args)
	if err != nil {
		return entities.JobEntity{}, fmt.Errorf("encoding job args: %w", err)
	}
	e := entities.JobEntity{
		ID:              j.ID,
		Command:         j.Job.Command,
		ArgsJSON:        string(argsJSON),
		StartTime:       j.StartTime,
		NextTime:        j.NextTime,
		EndTime:         j.EndTime,
		IgnoreQuietTime: j.IgnoreQuietTime,
		Status:          string(j.Status),
	}
	if j.Interval != nil {
		secs := j.Interval.Seconds()
		e.IntervalSeconds = &secs
	}
	return e, nil
}
