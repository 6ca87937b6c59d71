// Package engine implements the greedy least-loaded lead allocation algorithm.
// It is a pure computation over an in-memory capacity snapshot; persistence is
// the caller's concern.
package engine

import (
	"sort"
	"strings"

	"telecrm_backend/platform/apperr"

	"github.com/google/uuid"
)

// Candidate is one telecaller's view of the capacity snapshot at allocation time.
type Candidate struct {
	ID uuid.UUID
	// AssignedCount is the number of leads already assigned to the telecaller.
	AssignedCount int
	// DailyCallTarget caps |assignedLeads|. Zero means unlimited capacity.
	DailyCallTarget int
}

// remaining returns how many more leads the candidate may receive,
// or -1 for unlimited.
func (c Candidate) remaining() int {
	if c.DailyCallTarget == 0 {
		return -1
	}
	rem := c.DailyCallTarget - c.AssignedCount
	if rem < 0 {
		return 0
	}
	return rem
}

// Allocation is the outcome of a distribution run.
type Allocation struct {
	// Assignments maps telecaller id to the leads newly assigned to it,
	// in the order they were assigned.
	Assignments map[uuid.UUID][]uuid.UUID
	// UnassignedLeadIDs holds the leads left over once every eligible
	// telecaller reached its daily call target, in input order.
	UnassignedLeadIDs []uuid.UUID
}

// AssignedCount returns the total number of leads placed on telecallers.
func (a Allocation) AssignedCount() int {
	total := 0
	for _, leads := range a.Assignments {
		total += len(leads)
	}
	return total
}

type worker struct {
	id        uuid.UUID
	load      int
	remaining int // -1 for unlimited
}

// Distribute assigns each lead, in input order, to the eligible telecaller
// with the fewest currently-assigned leads. Ties break by telecaller id
// ascending; that ordering is a documented policy, not an accident, so that
// repeated runs over the same snapshot produce the same allocation.
//
// Leads encountered after all capacity is exhausted are returned in
// UnassignedLeadIDs rather than treated as an error; callers decide whether a
// partial allocation is acceptable.
func Distribute(leadIDs []uuid.UUID, candidates []Candidate) (Allocation, error) {
	if len(leadIDs) == 0 {
		return Allocation{}, apperr.Validation("no leads to distribute")
	}

	workers := make([]*worker, 0, len(candidates))
	for _, c := range candidates {
		rem := c.remaining()
		if rem == 0 {
			continue
		}
		workers = append(workers, &worker{id: c.ID, load: c.AssignedCount, remaining: rem})
	}
	if len(workers) == 0 {
		return Allocation{}, apperr.Unprocessable("no telecaller has remaining capacity")
	}

	sort.Slice(workers, func(i, j int) bool {
		return lessID(workers[i].id, workers[j].id)
	})

	alloc := Allocation{Assignments: make(map[uuid.UUID][]uuid.UUID)}

	for _, leadID := range leadIDs {
		target := pickLeastLoaded(workers)
		if target == nil {
			alloc.UnassignedLeadIDs = append(alloc.UnassignedLeadIDs, leadID)
			continue
		}

		alloc.Assignments[target.id] = append(alloc.Assignments[target.id], leadID)
		target.load++
		if target.remaining > 0 {
			target.remaining--
		}
	}

	return alloc, nil
}

// pickLeastLoaded scans for the eligible worker with the lowest load.
// The worker slice is small at expected scale; a heap is the upgrade path
// for very large telecaller pools.
func pickLeastLoaded(workers []*worker) *worker {
	var best *worker
	for _, w := range workers {
		if w.remaining == 0 {
			continue
		}
		if best == nil || w.load < best.load {
			best = w
		}
	}
	return best
}

func lessID(a, b uuid.UUID) bool {
	return strings.Compare(a.String(), b.String()) < 0
}
