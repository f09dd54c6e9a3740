package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions and descriptors such as
// "@daily" or "@every 6h".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSchedule is a Schedule backed by a parsed cron expression.
// Examples:
//   - "*/30 * * * *"  every 30 minutes
//   - "0 2 * * *"     every day at 02:00
//   - "0 3 * * 1"     every Monday at 03:00
type CronSchedule struct {
	raw   string
	sched cron.Schedule
}

// ParseCron parses a cron expression or descriptor.
func ParseCron(expr string) (*CronSchedule, error) {
	expr = strings.TrimSpace(expr)
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{raw: expr, sched: sched}, nil
}

// Next returns the first activation strictly after t.
func (c *CronSchedule) Next(t time.Time) time.Time {
	return c.sched.Next(t)
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.raw
}

// IntervalSchedule runs a job at a fixed interval after its previous slot.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// ParseSchedule accepts either a Go duration ("6h", "90m"), run at that
// fixed interval, or a cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, ErrNilSchedule
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("invalid interval %q: must be positive", spec)
		}
		return NewIntervalSchedule(d), nil
	}
	return ParseCron(spec)
}
