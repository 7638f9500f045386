package scheduler

import (
	"time"

	"gorm.io/gorm"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler/entities"
)

// synthetic job commands yielded on power-window crossings, never
// stored in the jobs table.
const (
	powerOffCommand = "power_off"
	powerOnCommand  = "power_on"
)

// RunnableJobs is the periodic poll operation. Stored jobs (step 3) are
// only considered when not currently in quiet time, or when they
// explicitly ignore it; the power-off/power-on crossing signal (step 2)
// is independent of that gate since the power window is itself a
// sub-window of quiet time. Grounded on PiccoloScheduler.runable_jobs.
func (s *Scheduler) RunnableJobs(now time.Time) ([]piccolospec.Job, error) {
	now = now.UTC()
	settings := s.Settings()
	inQuiet := settings.InQuietTime(now)

	s.mu.Lock()
	if inQuiet && !s.loggedQuietTime {
		s.log.Info("quiet time started, not scheduling any jobs")
		s.loggedQuietTime = true
	} else if !inQuiet && s.loggedQuietTime {
		s.log.Info("quiet time stopped, scheduling jobs again")
		s.loggedQuietTime = false
	}
	s.mu.Unlock()

	var jobs []piccolospec.Job
	jobs = append(jobs, s.powerWindowJobs(now, settings)...)

	due, err := s.dueJobs(now, settings)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, due...)

	return jobs, nil
}

func (s *Scheduler) powerWindowJobs(now time.Time, settings piccolospec.SchedulerSettings) []piccolospec.Job {
	if !settings.QuietTimeEnabled || !settings.PowerOffEnabled {
		return nil
	}

	span := settings.QuietEnd - settings.QuietStart
	if span <= 0 {
		span += 24 * time.Hour
	}
	if span <= 2*settings.PowerDelay {
		s.mu.Lock()
		if !s.loggedShortQuiet {
			s.log.Warn("quiet window too short for power-off delay, disabling power-off signalling",
				"quiet_window", span, "power_delay", settings.PowerDelay)
			s.loggedShortQuiet = true
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedShortQuiet = false

	inWindow := settings.PowerOffWindow(now)
	var out []piccolospec.Job
	if inWindow && !s.inPowerWindow {
		out = append(out, piccolospec.Job{Command: powerOffCommand})
		s.log.Info("entering power-off window")
	} else if !inWindow && s.inPowerWindow {
		out = append(out, piccolospec.Job{Command: powerOnCommand})
		s.log.Info("leaving power-off window")
	}
	s.inPowerWindow = inWindow
	return out
}

func (s *Scheduler) dueJobs(now time.Time, settings piccolospec.SchedulerSettings) ([]piccolospec.Job, error) {
	var out []piccolospec.Job
	anyChanged := false

	err := s.store.db.Transaction(func(tx *gorm.DB) error {
		var rows []entities.JobEntity
		if err := tx.Where("status IN ? AND next_time < ?",
			[]string{string(piccolospec.JobActive), string(piccolospec.JobSuspended)}, now).Find(&rows).Error; err != nil {
			return err
		}

		for i := range rows {
			row := &rows[i]
			job, err := entityToJob(*row)
			if err != nil {
				return err
			}

			if job.Status == piccolospec.JobActive && (job.IgnoreQuietTime || !settings.InQuietTime(now)) {
				out = append(out, job.Job)
				s.log.Info("running scheduled job", "id", job.ID, "command", job.Job.Command)
			}

			prevStatus := job.Status
			if job.Recurring() {
				job.Advance(now)
				if job.Expired(now) {
					job.Status = piccolospec.JobDone
				}
			} else {
				job.Status = piccolospec.JobDone
			}

			if job.Status != prevStatus {
				anyChanged = true
			}

			updated, err := jobToEntity(job)
			if err != nil {
				return err
			}
			if err := tx.Save(&updated).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if anyChanged {
		s.JobsChanged.Publish(struct{}{})
	}
	return out, nil
}
