package version

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInfo_DefaultsAreNotEmpty(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build info must not be empty: %q %q %q", v, c, d)
	}
	if GetVersion() != v {
		t.Fatalf("GetVersion (%s) must match Info (%s)", GetVersion(), v)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Fatalf("String %q must contain %q", s, part)
		}
	}
}

func TestBuildInfoCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := BuildInfoCollector()
	if err := reg.Register(collector); err != nil {
		t.Fatalf("register build info: %v", err)
	}
	if got := testutil.ToFloat64(collector); got != 1 {
		t.Fatalf("expected build info value 1, got %v", got)
	}
	if count := testutil.CollectAndCount(collector, "fiadopay_build_info"); count != 1 {
		t.Fatalf("expected one build info series, got %d", count)
	}
}
