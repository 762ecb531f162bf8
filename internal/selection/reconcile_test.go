package selection

import (
	"slices"
	"testing"
)

func TestReconcilePriority(t *testing.T) {
	res := Reconcile(NewSet(), []int64{5, 7, 9}, 2, NewSet(5, 7, 9))
	if !slices.Equal(res.Final, []int64{5, 7}) {
		t.Fatalf("unexpected final: %v", res.Final)
	}
	if res.Added != 2 || res.Removed != 0 || res.Blocked != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestReconcileKeepsExistingAboveQuota(t *testing.T) {
	res := Reconcile(NewSet(1, 2, 3), []int64{3, 2, 1, 4}, 1, NewSet(1, 2, 3, 4))
	if !slices.Equal(res.Final, []int64{1, 2, 3}) {
		t.Fatalf("existing picks must stay: %v", res.Final)
	}
	if res.Added != 0 || res.Removed != 0 || res.Blocked != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestReconcileRemovesUndesired(t *testing.T) {
	res := Reconcile(NewSet(1, 2, 3), []int64{2}, 3, NewSet(1, 2, 3))
	if !slices.Equal(res.Final, []int64{2}) || !slices.Equal(res.ToRemove, []int64{1, 3}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Removed != 2 || res.Added != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestReconcileEmptyDesiredClearsSelection(t *testing.T) {
	res := Reconcile(NewSet(4, 8), nil, 5, NewSet(4, 8))
	if len(res.Final) != 0 || res.Removed != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	valid := NewSet(1, 2, 3, 4, 5)
	desired := []int64{5, 1, 3, 2}
	first := Reconcile(NewSet(2), desired, 3, valid)
	second := Reconcile(NewSet(first.Final...), desired, 3, valid)
	if second.Added != 0 || second.Removed != 0 {
		t.Fatalf("second run changed the selection: %+v", second)
	}
	if !slices.Equal(first.Final, second.Final) {
		t.Fatalf("final drifted: %v vs %v", first.Final, second.Final)
	}
}

func TestReconcileQuotaInvariant(t *testing.T) {
	valid := NewSet(1, 2, 3, 4, 5, 6, 7, 8)
	cases := []struct {
		current  []int64
		desired  []int64
		required int
	}{
		{nil, []int64{1, 2, 3, 4, 5}, 3},
		{[]int64{1, 2, 3, 4}, []int64{1, 2, 3, 4, 5, 6}, 2},
		{[]int64{6}, []int64{8, 7, 6}, 0},
		{[]int64{1, 2}, []int64{3, 4}, 1},
		{[]int64{1, 2, 3}, []int64{1, 9, 9, 4, 4, 5}, 4},
	}
	for _, tc := range cases {
		current := NewSet(tc.current...)
		res := Reconcile(current, tc.desired, tc.required, valid)

		kept := 0
		desired := NewSet(tc.desired...)
		for id := range current {
			if desired.Has(id) && valid.Has(id) {
				kept++
			}
		}
		if len(res.Final) > max(tc.required, kept) {
			t.Fatalf("quota violated: %+v gives %v", tc, res.Final)
		}
		for _, id := range res.Final {
			if !valid.Has(id) || !desired.Has(id) {
				t.Fatalf("final holds id %d that was not desired and valid", id)
			}
		}
		for _, id := range tc.current {
			if desired.Has(id) && valid.Has(id) && !slices.Contains(res.Final, id) {
				t.Fatalf("kept pick %d was evicted: %+v", id, res)
			}
		}
	}
}

func TestReconcileDropsInvalidAndDuplicates(t *testing.T) {
	res := Reconcile(NewSet(), []int64{42, 3, 3, 99, 4}, 5, NewSet(3, 4))
	if !slices.Equal(res.Final, []int64{3, 4}) || res.Blocked != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Duplicates of a new id do not count as blocked once the quota is full.
	res = Reconcile(NewSet(), []int64{3, 3, 3, 4}, 1, NewSet(3, 4))
	if !slices.Equal(res.Final, []int64{3}) || res.Blocked != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParseIDs(t *testing.T) {
	got := ParseIDs([]string{"5", " 7 ", "abc", "", "-3", "0", "9.5", "11"})
	if !slices.Equal(got, []int64{5, 7, 11}) {
		t.Fatalf("unexpected ids: %v", got)
	}
}

func TestResultMessage(t *testing.T) {
	res := Result{Added: 2, Removed: 1, Blocked: 3}
	if got := res.Message(4); got != "2 added, 1 removed, 3 blocked (required: 4)" {
		t.Fatalf("unexpected message: %q", got)
	}
}
