package selection

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Set is a set of question ids.
type Set map[int64]struct{}

func NewSet(ids ...int64) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

type Result struct {
	Final    []int64 `json:"final"`
	ToAdd    []int64 `json:"-"`
	ToRemove []int64 `json:"-"`
	Added    int     `json:"added"`
	Removed  int     `json:"removed"`
	Blocked  int     `json:"blocked"`
}

// Reconcile computes the new selection of one course for one exam.
//
// Desired ids outside valid are dropped, and so are repeats after their first
// occurrence. Currently selected ids that are still desired are always kept,
// even above the quota. New ids are taken in submission order while the
// selection holds fewer than required items; each further new id counts as
// blocked.
func Reconcile(current Set, desired []int64, required int, valid Set) Result {
	filtered := make([]int64, 0, len(desired))
	seen := make(Set, len(desired))
	for _, id := range desired {
		if !valid.Has(id) || seen.Has(id) {
			continue
		}
		seen[id] = struct{}{}
		filtered = append(filtered, id)
	}

	final := make(Set, len(filtered))
	for _, id := range filtered {
		if current.Has(id) {
			final[id] = struct{}{}
		}
	}

	blocked := 0
	for _, id := range filtered {
		if final.Has(id) {
			continue
		}
		if len(final) < required {
			final[id] = struct{}{}
		} else {
			blocked++
		}
	}

	toAdd := make(Set)
	for id := range final {
		if !current.Has(id) {
			toAdd[id] = struct{}{}
		}
	}
	toRemove := make(Set)
	for id := range current {
		if !final.Has(id) {
			toRemove[id] = struct{}{}
		}
	}

	return Result{
		Final:    final.Sorted(),
		ToAdd:    toAdd.Sorted(),
		ToRemove: toRemove.Sorted(),
		Added:    len(toAdd),
		Removed:  len(toRemove),
		Blocked:  blocked,
	}
}

// ParseIDs keeps the entries that parse as positive integers, in order.
func ParseIDs(raw []string) []int64 {
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Message is the user-facing outcome line of an apply.
func (r Result) Message(required int) string {
	return fmt.Sprintf("%d added, %d removed, %d blocked (required: %d)", r.Added, r.Removed, r.Blocked, required)
}
