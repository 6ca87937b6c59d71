package engine

import (
	"fmt"
	"testing"

	"telecrm_backend/platform/apperr"

	"github.com/google/uuid"
)

// Fixed ids so ordering in assertions is stable. idA < idB < idC lexicographically.
var (
	idA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	idB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	idC = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func makeLeads(n int) []uuid.UUID {
	leads := make([]uuid.UUID, n)
	for i := range leads {
		leads[i] = uuid.MustParse(fmt.Sprintf("aaaaaaaa-0000-0000-0000-%012d", i+1))
	}
	return leads
}

func TestDistributeExactCapacityScenario(t *testing.T) {
	// A has target 2, B has target 1; three leads fit exactly.
	leads := makeLeads(3)
	alloc, err := Distribute(leads, []Candidate{
		{ID: idA, AssignedCount: 0, DailyCallTarget: 2},
		{ID: idB, AssignedCount: 0, DailyCallTarget: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotA := alloc.Assignments[idA]
	gotB := alloc.Assignments[idB]
	if len(gotA) != 2 || gotA[0] != leads[0] || gotA[1] != leads[2] {
		t.Fatalf("expected A to get [L1 L3], got %v", gotA)
	}
	if len(gotB) != 1 || gotB[0] != leads[1] {
		t.Fatalf("expected B to get [L2], got %v", gotB)
	}
	if len(alloc.UnassignedLeadIDs) != 0 {
		t.Fatalf("expected no unassigned leads, got %v", alloc.UnassignedLeadIDs)
	}
}

func TestDistributeRespectsDailyCallTarget(t *testing.T) {
	leads := makeLeads(10)
	candidates := []Candidate{
		{ID: idA, AssignedCount: 1, DailyCallTarget: 3},
		{ID: idB, AssignedCount: 0, DailyCallTarget: 2},
		{ID: idC, AssignedCount: 2, DailyCallTarget: 4},
	}

	alloc, err := Distribute(leads, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range candidates {
		newLoad := c.AssignedCount + len(alloc.Assignments[c.ID])
		if newLoad > c.DailyCallTarget {
			t.Fatalf("telecaller %s exceeds target: %d > %d", c.ID, newLoad, c.DailyCallTarget)
		}
	}

	// Total remaining capacity is 2+2+2=6; four leads must be left over.
	if got := len(alloc.UnassignedLeadIDs); got != 4 {
		t.Fatalf("expected 4 unassigned leads, got %d", got)
	}
	if alloc.AssignedCount() != 6 {
		t.Fatalf("expected 6 assigned leads, got %d", alloc.AssignedCount())
	}
	// Leftovers keep input order.
	for i, leadID := range alloc.UnassignedLeadIDs {
		if leadID != leads[6+i] {
			t.Fatalf("unassigned leads out of order at %d: got %s", i, leadID)
		}
	}
}

func TestDistributeNoDoubleAssignment(t *testing.T) {
	leads := makeLeads(7)
	alloc, err := Distribute(leads, []Candidate{
		{ID: idA, DailyCallTarget: 4},
		{ID: idB, DailyCallTarget: 4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[uuid.UUID]uuid.UUID)
	for tcID, assigned := range alloc.Assignments {
		for _, leadID := range assigned {
			if other, dup := seen[leadID]; dup {
				t.Fatalf("lead %s assigned to both %s and %s", leadID, other, tcID)
			}
			seen[leadID] = tcID
		}
	}
	if len(seen) != 7 {
		t.Fatalf("expected all 7 leads assigned once, got %d", len(seen))
	}
}

func TestDistributeFairnessWithEqualCapacity(t *testing.T) {
	leads := makeLeads(11)
	alloc, err := Distribute(leads, []Candidate{
		{ID: idA, DailyCallTarget: 20},
		{ID: idB, DailyCallTarget: 20},
		{ID: idC, DailyCallTarget: 20},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	min, max := len(leads), 0
	for _, id := range []uuid.UUID{idA, idB, idC} {
		n := len(alloc.Assignments[id])
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	if max-min > 1 {
		t.Fatalf("load difference %d exceeds 1 (min=%d max=%d)", max-min, min, max)
	}
}

func TestDistributeTieBreaksByIDAscending(t *testing.T) {
	leads := makeLeads(1)
	// Both idle with identical capacity; the lower id must win.
	alloc, err := Distribute(leads, []Candidate{
		{ID: idB, DailyCallTarget: 5},
		{ID: idA, DailyCallTarget: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alloc.Assignments[idA]) != 1 {
		t.Fatalf("expected tie to break to %s, got assignments %v", idA, alloc.Assignments)
	}
}

func TestDistributeZeroTargetMeansUnlimited(t *testing.T) {
	leads := makeLeads(25)
	alloc, err := Distribute(leads, []Candidate{
		{ID: idA, AssignedCount: 100, DailyCallTarget: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alloc.Assignments[idA]) != 25 {
		t.Fatalf("expected all 25 leads on the unlimited telecaller, got %d", len(alloc.Assignments[idA]))
	}
	if len(alloc.UnassignedLeadIDs) != 0 {
		t.Fatalf("unlimited telecaller must never exhaust: %v", alloc.UnassignedLeadIDs)
	}
}

func TestDistributePrefersLeastLoaded(t *testing.T) {
	leads := makeLeads(2)
	alloc, err := Distribute(leads, []Candidate{
		{ID: idA, AssignedCount: 5, DailyCallTarget: 10},
		{ID: idB, AssignedCount: 1, DailyCallTarget: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// B starts far behind, so both leads land on B before its load catches up.
	if len(alloc.Assignments[idB]) != 2 {
		t.Fatalf("expected both leads on the least-loaded telecaller, got %v", alloc.Assignments)
	}
}

func TestDistributeNoCapacityAvailable(t *testing.T) {
	_, err := Distribute(makeLeads(1), []Candidate{
		{ID: idA, AssignedCount: 3, DailyCallTarget: 3},
		{ID: idB, AssignedCount: 2, DailyCallTarget: 2},
	})
	if !apperr.Is(err, apperr.KindUnprocessable) {
		t.Fatalf("expected no-capacity error, got %v", err)
	}
}

func TestDistributeEmptyLeadList(t *testing.T) {
	_, err := Distribute(nil, []Candidate{{ID: idA, DailyCallTarget: 1}})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty lead list, got %v", err)
	}
}
