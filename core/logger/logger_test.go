package logger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatus(t *testing.T) {
	if got := Status(nil); got != "ok" {
		t.Fatalf("Status(nil) = %s, expected ok", got)
	}
	if got := Status(errors.New("boom")); got != "error" {
		t.Fatalf("Status(err) = %s, expected error", got)
	}
}

func TestRoundMS(t *testing.T) {
	if got := RoundMS(-time.Second); got != 0 {
		t.Fatalf("RoundMS(-1s) = %v, expected 0", got)
	}
	if got := RoundMS(1500 * time.Microsecond); got != 2*time.Millisecond {
		t.Fatalf("RoundMS(1.5ms) = %v, expected 2ms", got)
	}
}

func TestSummarizeStrings(t *testing.T) {
	vals := []string{"a", "b", "c"}
	joined, truncated := SummarizeStrings(vals, 2)
	if joined != "a, b" || !truncated {
		t.Fatalf("SummarizeStrings = (%q, %v), expected (\"a, b\", true)", joined, truncated)
	}
	joined, truncated = SummarizeStrings(vals, 5)
	if joined != "a, b, c" || truncated {
		t.Fatalf("SummarizeStrings = (%q, %v), expected full join", joined, truncated)
	}
}

func TestContextCarriers(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-1")
	ctx = WithMessageMeta(ctx, 42, "telegram")

	if rid := RIDFrom(ctx); rid != "rid-1" {
		t.Fatalf("RIDFrom = %s", rid)
	}
	if id := UserIDFrom(ctx); id != 42 {
		t.Fatalf("UserIDFrom = %d", id)
	}
	if p := PlatformFrom(ctx); p != "telegram" {
		t.Fatalf("PlatformFrom = %s", p)
	}
	if RIDFrom(nil) != "" || UserIDFrom(nil) != 0 || PlatformFrom(nil) != "" {
		t.Fatal("nil context should yield zero values")
	}
}
