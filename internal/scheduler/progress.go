package scheduler

import "time"

// refreshSize recomputes an execution's size from observed progress
// (spec §4.6, "Progress accounting (size refresh)"). It biases the SIZE
// policy toward executions that are close to finishing.
func refreshSize(en *entry, now time.Time) {
	if en.exec.RunningServicesCount == 0 || en.exec.ServicesCount == 0 {
		return
	}
	if en.exec.OriginalSize == 0 {
		en.exec.OriginalSize = en.exec.Size
	}
	if en.exec.LastTimeScheduled.IsZero() {
		en.exec.LastTimeScheduled = now
		return
	}

	dt := now.Sub(en.exec.LastTimeScheduled).Seconds()
	en.exec.LastTimeScheduled = now

	ratio := float64(en.exec.ServicesCount) / float64(en.exec.RunningServicesCount)
	denom := ratio * en.exec.OriginalSize
	if denom <= 0 {
		return
	}

	tick := dt / denom
	en.exec.ProgressSequence = append(en.exec.ProgressSequence, tick)

	var progress float64
	for _, p := range en.exec.ProgressSequence {
		progress += p
	}
	if progress > 1 {
		progress = 1
	}

	// OriginalSize already covers every service of the execution, so the
	// remaining fraction of it is the new size.
	remaining := (1 - progress) * en.exec.OriginalSize
	en.exec.Size = remaining
}
