package completion

import "questboard/services/task"

// claimable is the at-most-once reward gate. A task whose last_claimed_date
// is set has already granted its completion reward; the stored date's value
// is irrelevant, only its presence counts. The guard decides eligibility
// only — the coordinator writes the date, in the same transaction the check
// ran in, which is what closes the check-then-write race on concurrent
// double completion.
func claimable(t *task.Task) bool {
	return t.LastClaimedDate == nil
}
