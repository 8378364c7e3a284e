package value

import (
	"sync"
	"testing"
)

func TestCloneSharesPayloadDropsOnce(t *testing.T) {
	dropped := 0
	v := NewWithFinalizer(NewType("int"), 42, func(any) { dropped++ })

	c := v.Clone()
	v.Release()
	if dropped != 0 {
		t.Fatalf("dropped too early: %d", dropped)
	}
	c.Release()
	if dropped != 1 {
		t.Fatalf("expected exactly one drop, got %d", dropped)
	}
}

func TestTypeIdentityNotName(t *testing.T) {
	a := NewType("frame")
	b := NewType("frame")
	if a == b {
		t.Fatal("distinct NewType calls should not compare equal")
	}
	if a.String() != b.String() {
		t.Fatal("names should still match")
	}
}

func TestZeroValue(t *testing.T) {
	var v Value
	if !v.IsZero() {
		t.Fatal("zero Value should report IsZero")
	}
	if v.Payload() != nil {
		t.Fatal("zero Value payload should be nil")
	}
	v.Release() // must not panic
}

func TestCellMutualExclusion(t *testing.T) {
	cell := NewCell(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cell.With(func(data any) any {
				n := data.(int)
				return n + 1
			})
		}()
	}
	wg.Wait()
	if got := cell.Unwrap().(int); got != 100 {
		t.Fatalf("expected 100 increments, got %d", got)
	}
}
