package otel

import (
	"strings"
	"testing"
)

func TestSamplerDescription(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: "", want: "AlwaysOnSampler"},
		{raw: "garbage", want: "AlwaysOnSampler"},
		{raw: "1", want: "AlwaysOnSampler"},
		{raw: "0", want: "AlwaysOffSampler"},
		{raw: "0.5", want: "TraceIDRatioBased{0.5}"},
	}
	for _, tc := range cases {
		got := sampler(tc.raw).Description()
		if !strings.Contains(got, tc.want) {
			t.Fatalf("sampler(%q) = %q, want it to contain %q", tc.raw, got, tc.want)
		}
	}
}
