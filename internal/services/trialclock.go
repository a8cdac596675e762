package services

import "time"

const day = 24 * time.Hour

// DaysLeft returns the whole days remaining until trialEnd, rounded up and
// floored at zero. A device halfway through its last day still reports 1
// until the expiry instant passes.
func DaysLeft(trialEnd, now time.Time) int {
	diff := trialEnd.Sub(now)
	if diff <= 0 {
		return 0
	}
	days := int(diff / day)
	if diff%day > 0 {
		days++
	}
	return days
}
