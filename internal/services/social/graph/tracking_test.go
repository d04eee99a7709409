package graph

import (
	"slices"
	"testing"
)

func TestTrackerSettle(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*tracker)
		frame   func(*tracker)
		added   []string
		removed []string
		fetch   []string
	}{
		{
			name:  "new reference fetches",
			frame: func(tr *tracker) { tr.retain("a", pollIfNew) },
			added: []string{"a"},
			fetch: []string{"a"},
		},
		{
			name:  "existing reference does not refetch",
			setup: func(tr *tracker) { tr.retain("a", pollIfNew) },
			frame: func(tr *tracker) { tr.retain("a", pollIfNew) },
		},
		{
			name: "retain and release cancel out",
			frame: func(tr *tracker) {
				tr.retain("a", pollIfNew)
				tr.release("a")
			},
		},
		{
			name:  "release then retain keeps subscription",
			setup: func(tr *tracker) { tr.retain("a", pollIfNew) },
			frame: func(tr *tracker) {
				tr.release("a")
				tr.retain("a", pollIfNew)
			},
		},
		{
			name:    "last release removes",
			setup:   func(tr *tracker) { tr.retain("a", pollIfNew) },
			frame:   func(tr *tracker) { tr.release("a") },
			removed: []string{"a"},
		},
		{
			name:  "release without reference is ignored",
			frame: func(tr *tracker) { tr.release("a") },
		},
		{
			name:  "followed user stays after release",
			setup: func(tr *tracker) { tr.setFollowed("a", true, pollNever); tr.retain("a", pollIfNew) },
			frame: func(tr *tracker) { tr.release("a") },
		},
		{
			name:  "changed relationship always fetches",
			setup: func(tr *tracker) { tr.setFollowed("a", true, pollNever) },
			frame: func(tr *tracker) { tr.touch("a", pollAlways) },
			fetch: []string{"a"},
		},
		{
			name:    "unfollow removes unreferenced user",
			setup:   func(tr *tracker) { tr.setFollowed("a", true, pollNever) },
			frame:   func(tr *tracker) { tr.setFollowed("a", false, pollAlways) },
			removed: []string{"a"},
		},
		{
			name:  "follow from load does not fetch",
			frame: func(tr *tracker) { tr.setFollowed("a", true, pollNever) },
			added: []string{"a"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTracker()
			if tc.setup != nil {
				tc.setup(tr)
				tr.settle()
			}
			tc.frame(tr)
			got := tr.settle()
			if !slices.Equal(got.added, tc.added) {
				t.Fatalf("added = %v, want %v", got.added, tc.added)
			}
			if !slices.Equal(got.removed, tc.removed) {
				t.Fatalf("removed = %v, want %v", got.removed, tc.removed)
			}
			if !slices.Equal(got.fetch, tc.fetch) {
				t.Fatalf("fetch = %v, want %v", got.fetch, tc.fetch)
			}
		})
	}
}

func TestTrackerIDsUnionsReferencesAndFollows(t *testing.T) {
	tr := newTracker()
	tr.retain("b", pollIfNew)
	tr.setFollowed("a", true, pollNever)
	tr.setFollowed("b", true, pollNever)
	if got := tr.ids(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("ids = %v, want [a b]", got)
	}
	if got := tr.followedIDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("followed = %v, want [a b]", got)
	}
}
