package scheduler

import "time"

// timeLocation resolves a configured timezone name to a *time.Location,
// defaulting to UTC when unset (spec §4.7: "scheduler.timezone defaults to
// UTC when absent").
func timeLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
