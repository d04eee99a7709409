package id

import (
	"encoding/base32"
	"strings"
	"testing"
)

func TestNewHandleFormat(t *testing.T) {
	for _, kind := range []Kind{KindFilterGroup, KindListGroup} {
		handle, err := New(kind)
		if err != nil {
			t.Fatalf("new %s: %v", kind, err)
		}
		random, ok := strings.CutPrefix(handle, string(kind)+"_")
		if !ok {
			t.Fatalf("handle %q lacks %s prefix", handle, kind)
		}
		if len(random) != 26 {
			t.Fatalf("random part = %d chars, want 26", len(random))
		}
		decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(random))
		if err != nil {
			t.Fatalf("decode %q: %v", random, err)
		}
		if version := decoded[6] >> 4; version != 4 {
			t.Fatalf("uuid version = %d, want 4", version)
		}
		if variant := decoded[8] & 0xC0; variant != 0x80 {
			t.Fatalf("uuid variant = 0x%X, want 0x80", variant)
		}
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New("zz"); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestKindOf(t *testing.T) {
	filter, err := New(KindFilterGroup)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := []struct {
		handle string
		want   Kind
		ok     bool
	}{
		{handle: filter, want: KindFilterGroup, ok: true},
		{handle: "lg_" + strings.Repeat("a", 26), want: KindListGroup, ok: true},
		{handle: "", ok: false},
		{handle: "lg_short", ok: false},
		{handle: "zz_" + strings.Repeat("a", 26), ok: false},
		{handle: "lg_" + strings.Repeat("1", 26), ok: false},
	}
	for _, tc := range cases {
		got, ok := KindOf(tc.handle)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("KindOf(%q) = %q, %v, want %q, %v", tc.handle, got, ok, tc.want, tc.ok)
		}
	}
}
