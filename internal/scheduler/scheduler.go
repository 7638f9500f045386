// Package scheduler implements the persistent job scheduler: settings
// and quiet-time rows plus a table of scheduled jobs, a runnable-job
// iterator gated by quiet time and the power-off sub-window, and
// suspend/unsuspend/delete mutations. Grounded on
// original_source/PiccoloScheduler.py.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/TeamPiccolo/piccolo3-server/internal/events"
	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler/entities"
)

const (
	keyQuietTimeEnabled = "quiet_time_enabled"
	keyPowerOffEnabled  = "power_off_enabled"
	keyPowerDelay       = "power_delay"

	defaultQuietStart = 22 * time.Hour
	defaultQuietEnd   = 4 * time.Hour
	defaultPowerDelay = 600 * time.Second
)

// Scheduler owns the scheduler.sqlite-backed job table and the
// quiet-time/power-off settings that gate it.
type Scheduler struct {
	store *Store
	log   *slog.Logger

	mu       sync.Mutex
	settings piccolospec.SchedulerSettings

	loggedQuietTime  bool
	inPowerWindow    bool
	loggedShortQuiet bool

	SettingsChanged events.Notifier[piccolospec.SchedulerSettings]
	JobsChanged     events.Notifier[struct{}]
}

// New loads (or creates with defaults) the settings/quiettime rows and
// returns a ready Scheduler, grounded on PiccoloScheduler.__init__'s
// query-or-insert-default pattern for each setting.
func New(store *Store, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{store: store, log: log}
	if err := s.loadSettings(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) loadSettings() error {
	settings := piccolospec.SchedulerSettings{
		QuietStart: defaultQuietStart,
		QuietEnd:   defaultQuietEnd,
		PowerDelay: defaultPowerDelay,
	}

	if err := s.store.db.Transaction(func(tx *gorm.DB) error {
		if v, err := getOrInsertSetting(tx, keyQuietTimeEnabled, "False"); err != nil {
			return err
		} else {
			settings.QuietTimeEnabled = v == "True"
		}
		if v, err := getOrInsertSetting(tx, keyPowerOffEnabled, "False"); err != nil {
			return err
		} else {
			settings.PowerOffEnabled = v == "True"
		}
		if v, err := getOrInsertSetting(tx, keyPowerDelay, fmt.Sprintf("%d", int(defaultPowerDelay.Seconds()))); err != nil {
			return err
		} else {
			var secs int
			if _, err := fmt.Sscanf(v, "%d", &secs); err == nil {
				settings.PowerDelay = time.Duration(secs) * time.Second
			}
		}

		qs, err := getOrInsertQuietTime(tx, "start", formatTimeOfDay(defaultQuietStart))
		if err != nil {
			return err
		}
		if d, err := parseTimeOfDay(qs); err == nil {
			settings.QuietStart = d
		}

		qe, err := getOrInsertQuietTime(tx, "end", formatTimeOfDay(defaultQuietEnd))
		if err != nil {
			return err
		}
		if d, err := parseTimeOfDay(qe); err == nil {
			settings.QuietEnd = d
		}
		return nil
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

func getOrInsertSetting(tx *gorm.DB, key, def string) (string, error) {
	var row entities.SettingEntity
	err := tx.Where("key = ?", key).First(&row).Error
	if err == nil {
		return row.Value, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", err
	}
	row = entities.SettingEntity{Key: key, Value: def}
	if err := tx.Create(&row).Error; err != nil {
		return "", err
	}
	return def, nil
}

func getOrInsertQuietTime(tx *gorm.DB, label, def string) (string, error) {
	var row entities.QuietTimeEntity
	err := tx.Where("label = ?", label).First(&row).Error
	if err == nil {
		return row.Time, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", err
	}
	row = entities.QuietTimeEntity{Label: label, Time: def}
	if err := tx.Create(&row).Error; err != nil {
		return "", err
	}
	return def, nil
}

// Settings returns a snapshot of the current quiet-time/power-off
// configuration.
func (s *Scheduler) Settings() piccolospec.SchedulerSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Scheduler) setBoolSetting(key string, value bool) error {
	str := "False"
	if value {
		str = "True"
	}
	if err := s.store.db.Save(&entities.SettingEntity{Key: key, Value: str}).Error; err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// SetQuietTimeEnabled toggles whether the quiet window is enforced.
func (s *Scheduler) SetQuietTimeEnabled(enabled bool) error {
	if err := s.setBoolSetting(keyQuietTimeEnabled, enabled); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings.QuietTimeEnabled = enabled
	snapshot := s.settings
	s.mu.Unlock()
	s.SettingsChanged.Publish(snapshot)
	return nil
}

// SetPowerOffEnabled toggles the power-off sub-window signalling.
func (s *Scheduler) SetPowerOffEnabled(enabled bool) error {
	if err := s.setBoolSetting(keyPowerOffEnabled, enabled); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings.PowerOffEnabled = enabled
	snapshot := s.settings
	s.mu.Unlock()
	s.SettingsChanged.Publish(snapshot)
	return nil
}

// SetPowerDelay sets the lead/lag margin around the quiet window within
// which peripherals are assumed safely powered off.
func (s *Scheduler) SetPowerDelay(d time.Duration) error {
	if d < 0 {
		return perrors.Domain("scheduler", "power delay must be non-negative, got %v", d)
	}
	if err := s.store.db.Save(&entities.SettingEntity{Key: keyPowerDelay, Value: fmt.Sprintf("%d", int(d.Seconds()))}).Error; err != nil {
		return fmt.Errorf("saving power delay: %w", err)
	}
	s.mu.Lock()
	s.settings.PowerDelay = d
	snapshot := s.settings
	s.mu.Unlock()
	s.SettingsChanged.Publish(snapshot)
	return nil
}

// SetQuietStart sets the start of the daily quiet window (time of day,
// UTC).
func (s *Scheduler) SetQuietStart(d time.Duration) error {
	if err := s.store.db.Save(&entities.QuietTimeEntity{Label: "start", Time: formatTimeOfDay(d)}).Error; err != nil {
		return fmt.Errorf("saving quiet start: %w", err)
	}
	s.mu.Lock()
	s.settings.QuietStart = d
	snapshot := s.settings
	s.mu.Unlock()
	s.SettingsChanged.Publish(snapshot)
	return nil
}

// SetQuietEnd sets the end of the daily quiet window (time of day,
// UTC).
func (s *Scheduler) SetQuietEnd(d time.Duration) error {
	if err := s.store.db.Save(&entities.QuietTimeEntity{Label: "end", Time: formatTimeOfDay(d)}).Error; err != nil {
		return fmt.Errorf("saving quiet end: %w", err)
	}
	s.mu.Lock()
	s.settings.QuietEnd = d
	snapshot := s.settings
	s.mu.Unlock()
	s.SettingsChanged.Publish(snapshot)
	return nil
}
