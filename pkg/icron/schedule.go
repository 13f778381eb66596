// Package icron parses cron expressions and reports trigger times.
package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as "@every 30s".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// Validate reports whether cronExpr parses.
func Validate(cronExpr string) error {
	if _, err := Parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// GetTriggerInfo returns the previous and next trigger around refTime. Last
// is zero when the schedule has not fired within the past year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	nextTime := schedule.Next(refTime)
	prevTime := previous(schedule, refTime, nextTime)

	info := &TriggerInfo{
		Expression:    cronExpr,
		Next:          nextTime,
		Last:          prevTime,
		TimeUntilNext: nextTime.Sub(refTime),
	}
	if !prevTime.IsZero() {
		info.TimeSinceLast = refTime.Sub(prevTime)
	}
	return info, nil
}

// previous widens a look-back window until a trigger at or before refTime
// is found, then walks forward to the latest one.
func previous(schedule cron.Schedule, refTime, nextTime time.Time) time.Time {
	if nextTime.IsZero() {
		return time.Time{}
	}
	gap := schedule.Next(nextTime).Sub(nextTime)
	if gap <= 0 {
		gap = time.Minute
	}

	const horizon = 366 * 24 * time.Hour
	for back := gap; back <= 2*horizon; back *= 2 {
		candidate := schedule.Next(refTime.Add(-back))
		if candidate.IsZero() || candidate.After(refTime) {
			continue
		}
		for {
			n := schedule.Next(candidate)
			if n.IsZero() || n.After(refTime) {
				return candidate
			}
			candidate = n
		}
	}
	return time.Time{}
}
