package piccolospec

import "time"

// Job is the opaque payload a ScheduledJob carries: a command name plus
// its positional arguments, e.g. {"record", []any{"run1", 10}}. The
// scheduler never interprets the payload itself; it only hands it to
// whatever dispatcher the caller supplied (see original_source's
// PiccoloScheduler storing (cmd, args) tuples verbatim).
type Job struct {
	Command string
	Args    []any
}

// ScheduledJob is one row of the persistent job queue.
type ScheduledJob struct {
	ID              int64
	Job             Job
	StartTime       time.Time
	NextTime        time.Time
	EndTime         *time.Time
	Interval        *time.Duration
	IgnoreQuietTime bool
	Status          JobStatus
}

// Recurring reports whether the job should be rescheduled after firing.
func (j *ScheduledJob) Recurring() bool {
	return j.Interval != nil && *j.Interval > 0
}

// Expired reports whether the job's end time has passed as of now.
func (j *ScheduledJob) Expired(now time.Time) bool {
	return j.EndTime != nil && now.After(*j.EndTime)
}

// Advance fast-forwards NextTime by whole multiples of Interval until it
// is after now, mirroring the original scheduler's catch-up behaviour
// when the server was down across one or more intervals: it never fires
// a backlog of missed runs, it just jumps to the next one due.
func (j *ScheduledJob) Advance(now time.Time) {
	if !j.Recurring() {
		return
	}
	if j.NextTime.After(now) {
		return
	}
	elapsed := now.Sub(j.NextTime)
	missed := elapsed / *j.Interval
	j.NextTime = j.NextTime.Add((missed + 1) * *j.Interval)
}

// SchedulerSettings holds the quiet-time and power-off window
// configuration that gates when non-exempt jobs may run.
type SchedulerSettings struct {
	QuietTimeEnabled bool
	PowerOffEnabled  bool
	QuietStart       time.Duration // time of day, offset from midnight UTC
	QuietEnd         time.Duration
	PowerDelay       time.Duration
}

// InQuietTime reports whether the clock time of now (UTC) falls within
// the configured quiet window. A window that wraps past midnight
// (QuietEnd < QuietStart) is handled the way the original's
// in_quiet_time does: the window covers [QuietStart, 24h) U [0, QuietEnd).
func (s SchedulerSettings) InQuietTime(now time.Time) bool {
	if !s.QuietTimeEnabled {
		return false
	}
	tod := timeOfDay(now)
	if s.QuietStart <= s.QuietEnd {
		return tod >= s.QuietStart && tod < s.QuietEnd
	}
	return tod >= s.QuietStart || tod < s.QuietEnd
}

// PowerOffWindow reports whether now falls within the narrower window
// during which devices are assumed powered off: [QuietStart+PowerDelay,
// QuietEnd-PowerDelay). If that window is empty or inverted (the quiet
// period is too short for two PowerDelay margins) power-off gating is
// disabled entirely for this quiet period, matching the original's
// guard against negative/zero power-on lead time.
func (s SchedulerSettings) PowerOffWindow(now time.Time) bool {
	if !s.QuietTimeEnabled || !s.PowerOffEnabled {
		return false
	}
	powerOff := s.QuietStart + s.PowerDelay
	powerOn := s.QuietEnd - s.PowerDelay
	if s.QuietStart <= s.QuietEnd {
		if powerOff >= powerOn {
			return false
		}
		tod := timeOfDay(now)
		return tod >= powerOff && tod < powerOn
	}
	// wrapped window: treat PowerDelay margins the same way, but guard
	// against a window so short the margins overlap across midnight.
	span := (24*time.Hour - s.QuietStart) + s.QuietEnd
	if span <= 2*s.PowerDelay {
		return false
	}
	tod := timeOfDay(now)
	switch {
	case powerOff >= 24*time.Hour:
		return tod >= powerOff-24*time.Hour && tod < powerOn
	case powerOn < 0:
		return tod >= powerOff && tod < powerOn+24*time.Hour
	default:
		return tod >= powerOff || tod < powerOn
	}
}

func timeOfDay(t time.Time) time.Duration {
	t = t.UTC()
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}
