// Package entities contains the GORM models that map directly onto
// scheduler.sqlite's tables, kept separate from the domain model in
// internal/piccolospec the way the teacher's datastore/entities package
// is kept separate from its domain notes.
package entities

import "time"

// SettingEntity is a single key/value row in the 'settings' table.
type SettingEntity struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (SettingEntity) TableName() string { return "settings" }

// QuietTimeEntity is a single labelled time-of-day row ('start'/'end')
// in the 'quiettime' table. Time-of-day is stored as "HH:MM:SS" since
// SQLite has no native TIME type.
type QuietTimeEntity struct {
	Label string `gorm:"primaryKey"`
	Time  string
}

func (QuietTimeEntity) TableName() string { return "quiettime" }

// JobEntity is one row of the 'jobs' table.
type JobEntity struct {
	ID              int64 `gorm:"primaryKey"`
	Command         string
	ArgsJSON        string `gorm:"type:text"`
	StartTime       time.Time
	NextTime        time.Time `gorm:"index"`
	EndTime         *time.Time
	IntervalSeconds *float64
	IgnoreQuietTime bool
	Status          string `gorm:"index"`
}

func (JobEntity) TableName() string { return "jobs" }
