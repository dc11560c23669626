package session

import (
	"cmp"
	"slices"
)

// Reconcile merges a batch's declared capacity with its sparse persisted records
// into a complete, ordered slot list.
//
// With a known capacity N the result holds slots 1..N (placeholders fill the
// gaps), followed by records numbered above N in ascending order, followed by
// records with no session number ordered by date. Capacity is a minimum, not a
// ceiling. With an unknown capacity (nil) every record is returned, ordered by
// session number with records lacking a number placed after, by date.
//
// If two records share a session number the first one in input order binds the
// slot and the later one is dropped.
//
// PRE: none
// POST: Output depends only on the inputs; records is not mutated
func Reconcile(batchID string, totalSessions *int, records []SessionRecord) []Slot {
	byNumber := make(map[int]SessionRecord, len(records))
	var unnumbered []SessionRecord
	for _, r := range records {
		if r.SessionNumber < 1 {
			unnumbered = append(unnumbered, r)
			continue
		}
		if _, dup := byNumber[r.SessionNumber]; dup {
			continue
		}
		byNumber[r.SessionNumber] = r
	}
	slices.SortStableFunc(unnumbered, func(a, b SessionRecord) int {
		return cmp.Compare(a.Date, b.Date)
	})

	if totalSessions == nil {
		numbers := sortedKeys(byNumber, 0)
		slots := make([]Slot, 0, len(numbers)+len(unnumbered))
		for _, n := range numbers {
			slots = append(slots, Bind(n, byNumber[n]))
		}
		return appendUnnumbered(slots, unnumbered)
	}

	n := max(*totalSessions, 0)
	extra := sortedKeys(byNumber, n)
	slots := make([]Slot, 0, n+len(extra)+len(unnumbered))
	for i := 1; i <= n; i++ {
		if r, ok := byNumber[i]; ok {
			slots = append(slots, Bind(i, r))
			continue
		}
		slots = append(slots, DefaultSlot(batchID, i))
	}
	for _, num := range extra {
		slots = append(slots, Bind(num, byNumber[num]))
	}
	return appendUnnumbered(slots, unnumbered)
}

// sortedKeys returns the session numbers above floor in ascending order.
func sortedKeys(byNumber map[int]SessionRecord, floor int) []int {
	keys := make([]int, 0, len(byNumber))
	for k := range byNumber {
		if k > floor {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// appendUnnumbered gives records without a session number a derived display
// index that continues after the last slot.
func appendUnnumbered(slots []Slot, unnumbered []SessionRecord) []Slot {
	next := 0
	if len(slots) > 0 {
		next = slots[len(slots)-1].Index
	}
	for _, r := range unnumbered {
		next++
		slots = append(slots, Bind(next, r))
	}
	return slots
}
