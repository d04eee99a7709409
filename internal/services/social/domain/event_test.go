package domain

import (
	"reflect"
	"testing"
)

func TestChunkIDs(t *testing.T) {
	cases := []struct {
		name string
		ids  []string
		size int
		want [][]string
	}{
		{name: "empty", ids: nil, size: 10, want: nil},
		{name: "exact", ids: []string{"1", "2"}, size: 2, want: [][]string{{"1", "2"}}},
		{name: "remainder", ids: []string{"1", "2", "3"}, size: 2, want: [][]string{{"1", "2"}, {"3"}}},
		{name: "non-positive size", ids: []string{"1", "2"}, size: 0, want: [][]string{{"1", "2"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ChunkIDs(tc.ids, tc.size); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ChunkIDs = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestChunkIDsDoesNotShareCapacity(t *testing.T) {
	ids := []string{"1", "2", "3"}
	chunks := ChunkIDs(ids, 2)
	_ = append(chunks[0], "x")
	if ids[2] != "3" {
		t.Fatal("expected chunk append not to overwrite the source")
	}
}

func TestParseDetailLevel(t *testing.T) {
	cases := []struct {
		value   string
		want    DetailLevel
		wantErr bool
	}{
		{value: "", want: DetailNone},
		{value: "none", want: DetailNone},
		{value: "titlehistory", want: DetailTitleHistory},
		{value: "TitleHistory, preferredcolor", want: DetailAll},
		{value: "all", want: DetailAll},
		{value: "everything", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseDetailLevel(tc.value)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDetailLevel(%q) expected error", tc.value)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDetailLevel(%q): %v", tc.value, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDetailLevel(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestFilterParsingRoundTrip(t *testing.T) {
	for filter := PresenceFilterAll; filter <= PresenceFilterTitleOnlineOutside; filter++ {
		if got := ParsePresenceFilter(filter.String()); got != filter {
			t.Fatalf("ParsePresenceFilter(%q) = %v, want %v", filter.String(), got, filter)
		}
	}
	for filter := RelationshipFilterFriends; filter <= RelationshipFilterAll; filter++ {
		if got := ParseRelationshipFilter(filter.String()); got != filter {
			t.Fatalf("ParseRelationshipFilter(%q) = %v, want %v", filter.String(), got, filter)
		}
	}
	if got := ParsePresenceFilter("sometimes"); got != PresenceFilterUnknown {
		t.Fatalf("unknown presence filter = %v, want unknown", got)
	}
}
