package scheduler

import (
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses the standard 5-field form (minute hour dom month dow),
// grounded on internal/cron/scheduler.go's cronParser.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// nextCronRun parses expr and returns the next occurrence strictly after
// after, evaluated in tz (empty defaults to after's own location).
// Grounded on internal/cron/scheduler.go's NextRunTime.
func nextCronRun(expr, tz string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	if tz == "" {
		return sched.Next(after), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after.In(loc)), nil
}
