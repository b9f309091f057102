package github

import "strings"

// Runner is the hosted platform's record of a registered self-hosted runner.
type Runner struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"` // "online" or "offline"
	Busy   bool   `json:"busy"`
}

// StatusSets partitions runner ids by observed state. The three sets are
// pairwise disjoint: offline takes precedence even when the listing also
// reports the runner busy.
type StatusSets struct {
	Busy    []int64
	Idle    []int64
	Offline []int64
}

// PartitionRunners classifies runners whose name carries the fleet prefix.
// Runners outside the prefix belong to other fleets (or were registered by
// hand) and are excluded from all three sets.
func PartitionRunners(runners []Runner, namePrefix string) StatusSets {
	var sets StatusSets
	for _, r := range runners {
		if !strings.HasPrefix(r.Name, namePrefix) {
			continue
		}
		switch {
		case r.Status == "offline":
			sets.Offline = append(sets.Offline, r.ID)
		case r.Busy:
			sets.Busy = append(sets.Busy, r.ID)
		default:
			sets.Idle = append(sets.Idle, r.ID)
		}
	}
	return sets
}
