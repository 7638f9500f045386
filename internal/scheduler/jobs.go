package scheduler

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler/entities"
)

// Add schedules a new job. It is a silent no-op (nil job, nil error)
// when the request can never run: a non-repeating job whose start has
// already passed, or any job whose end time has already passed,
// exactly as PiccoloScheduler.add declines to insert a row rather than
// raising.
func (s *Scheduler) Add(job piccolospec.Job, start time.Time, interval *time.Duration, end *time.Time, ignoreQuietTime bool) (*piccolospec.ScheduledJob, error) {
	now := time.Now().UTC()
	if interval == nil && start.Before(now) {
		return nil, nil
	}
	if end != nil && end.Before(now) {
		return nil, nil
	}

	sj := &piccolospec.ScheduledJob{
		Job:             job,
		StartTime:       start,
		NextTime:        start,
		EndTime:         end,
		Interval:        interval,
		IgnoreQuietTime: ignoreQuietTime,
		Status:          piccolospec.JobActive,
	}

	e, err := jobToEntity(sj)
	if err != nil {
		return nil, err
	}
	if err := s.store.db.Create(&e).Error; err != nil {
		return nil, fmt.Errorf("inserting scheduled job: %w", err)
	}
	sj.ID = e.ID

	s.log.Info("scheduled job", "id", sj.ID, "command", job.Command)
	s.JobsChanged.Publish(struct{}{})
	return sj, nil
}

// QueueDepth returns the number of jobs currently active or suspended,
// for periodic export as a gauge (see internal/metrics).
func (s *Scheduler) QueueDepth() (int64, error) {
	var n int64
	err := s.store.db.Model(&entities.JobEntity{}).
		Where("status IN ?", []string{string(piccolospec.JobActive), string(piccolospec.JobSuspended)}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return n, nil
}

// Jobs returns every job row, regardless of status.
func (s *Scheduler) Jobs() ([]*piccolospec.ScheduledJob, error) {
	var rows []entities.JobEntity
	if err := s.store.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing scheduled jobs: %w", err)
	}
	jobs := make([]*piccolospec.ScheduledJob, 0, len(rows))
	for _, r := range rows {
		j, err := entityToJob(r)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// checkDone promotes a job whose next_time has passed its end_time to
// done, mirroring PiccoloScheduledJob's implicit expiry check that
// runs before every mutation in the original.
func checkDone(tx *gorm.DB, row *entities.JobEntity) error {
	if row.EndTime != nil && row.NextTime.After(*row.EndTime) && row.Status != string(piccolospec.JobDone) {
		row.Status = string(piccolospec.JobDone)
		return tx.Save(row).Error
	}
	return nil
}

func (s *Scheduler) mutateStatus(id int64, from, to piccolospec.JobStatus) (bool, error) {
	changed := false
	err := s.store.db.Transaction(func(tx *gorm.DB) error {
		var row entities.JobEntity
		if err := tx.First(&row, id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return perrors.Domain("scheduler", "no such job %d", id)
			}
			return err
		}
		if err := checkDone(tx, &row); err != nil {
			return err
		}
		if piccolospec.JobStatus(row.Status) != from {
			return nil
		}
		row.Status = string(to)
		changed = true
		return tx.Save(&row).Error
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Suspend moves an active job to suspended. Idempotent: calling it on
// an already-suspended job is a silent no-op with no change event.
func (s *Scheduler) Suspend(id int64) error {
	changed, err := s.mutateStatus(id, piccolospec.JobActive, piccolospec.JobSuspended)
	if err != nil {
		return err
	}
	if changed {
		s.JobsChanged.Publish(struct{}{})
	}
	return nil
}

// Unsuspend moves a suspended job back to active.
func (s *Scheduler) Unsuspend(id int64) error {
	changed, err := s.mutateStatus(id, piccolospec.JobSuspended, piccolospec.JobActive)
	if err != nil {
		return err
	}
	if changed {
		s.JobsChanged.Publish(struct{}{})
	}
	return nil
}

// Delete marks an active or suspended job deleted; the row is retained
// as a tombstone for history queries within the session, not removed.
func (s *Scheduler) Delete(id int64) error {
	var changed bool
	err := s.store.db.Transaction(func(tx *gorm.DB) error {
		var row entities.JobEntity
		if err := tx.First(&row, id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return perrors.Domain("scheduler", "no such job %d", id)
			}
			return err
		}
		if err := checkDone(tx, &row); err != nil {
			return err
		}
		status := piccolospec.JobStatus(row.Status)
		if status != piccolospec.JobActive && status != piccolospec.JobSuspended {
			return nil
		}
		row.Status = string(piccolospec.JobDeleted)
		changed = true
		return tx.Save(&row).Error
	})
	if err != nil {
		return err
	}
	if changed {
		s.JobsChanged.Publish(struct{}{})
	}
	return nil
}
