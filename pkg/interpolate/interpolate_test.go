package interpolate

import (
	"testing"
	"time"
)

func TestInterpolateSourceAndPipeline(t *testing.T) {
	ctx := InterpolationContext{SourceName: "loading dock", PipelineID: "a1b2c3"}
	got := Interpolate("cam-%N-%i", ctx, AsIs)
	want := "cam-loading dock-a1b2c3"
	if got != want {
		t.Fatalf("Interpolate() = %q, want %q", got, want)
	}
}

func TestInterpolateCasing(t *testing.T) {
	ctx := InterpolationContext{SourceName: "loading dock"}
	if got := Interpolate("%N", ctx, Title); got != "Loading Dock" {
		t.Fatalf("Title case = %q, want %q", got, "Loading Dock")
	}
	if got := Interpolate("%N", ctx, Upper); got != "LOADING DOCK" {
		t.Fatalf("Upper case = %q, want %q", got, "LOADING DOCK")
	}
}

func TestInterpolateTimestamp(t *testing.T) {
	ctx := InterpolationContext{Now: time.Date(2026, 3, 5, 9, 7, 2, 0, time.UTC)}
	got := Interpolate("%Y-%m-%d_%H%M%S", ctx, AsIs)
	want := "2026-03-05_090702"
	if got != want {
		t.Fatalf("Interpolate() = %q, want %q", got, want)
	}
}

func TestInterpolateLiteralPercent(t *testing.T) {
	ctx := InterpolationContext{}
	if got := Interpolate("100%% done", ctx, AsIs); got != "100% done" {
		t.Fatalf("Interpolate() = %q, want %q", got, "100% done")
	}
}

func TestInterpolateUnknownEscapePassesThrough(t *testing.T) {
	ctx := InterpolationContext{}
	got := Interpolate("%Q", ctx, AsIs)
	if got != "%Q" {
		t.Fatalf("Interpolate() = %q, want %q", got, "%Q")
	}
}

func TestInterpolateTrailingPercent(t *testing.T) {
	ctx := InterpolationContext{}
	if got := Interpolate("abc%", ctx, AsIs); got != "abc%" {
		t.Fatalf("Interpolate() = %q, want %q", got, "abc%")
	}
}
