package gateway

import "testing"

func TestAccumulatorPushAndAccumulated(t *testing.T) {
	a := NewAccumulator()
	if got := a.Accumulated(); got != 0 {
		t.Fatalf("Accumulated() = %d, want 0", got)
	}
	a.Push([]float32{1, 2, 3})
	if got := a.Accumulated(); got != 3 {
		t.Fatalf("Accumulated() = %d, want 3", got)
	}
	a.PushZeros(5)
	if got := a.Accumulated(); got != 8 {
		t.Fatalf("Accumulated() = %d, want 8", got)
	}
}

func TestAccumulatorCloseDropsFurtherWrites(t *testing.T) {
	a := NewAccumulator()
	a.Push([]float32{1})
	a.Close()
	a.Push([]float32{2, 3})
	a.PushZeros(4)
	if got := a.Accumulated(); got != 1 {
		t.Fatalf("Accumulated() after Close = %d, want 1", got)
	}
}

func TestAccumulatorDropBeforeBoundsMemoryNotAccumulated(t *testing.T) {
	a := NewAccumulator()
	a.Push([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	a.DropBefore(5)
	if got := a.Accumulated(); got != 10 {
		t.Fatalf("Accumulated() = %d, want 10 (DropBefore must not un-accumulate)", got)
	}
	if got := a.Base(); got != 5 {
		t.Fatalf("Base() = %d, want 5", got)
	}
	if got := a.Available(0); got != 5 {
		t.Fatalf("Available(0) = %d, want 5", got)
	}

	// DropBefore never moves backward.
	a.DropBefore(2)
	if got := a.Base(); got != 5 {
		t.Fatalf("Base() after backward DropBefore = %d, want 5", got)
	}

	// Clamped to the retained window's end.
	a.DropBefore(1000)
	if got := a.Base(); got != 10 {
		t.Fatalf("Base() after oversized DropBefore = %d, want 10", got)
	}
}

func TestAccumulatorPeekFrom(t *testing.T) {
	a := NewAccumulator()
	a.Push([]float32{10, 11, 12, 13, 14})
	a.DropBefore(2)

	got := a.PeekFrom(0, 2)
	want := []float32{12, 13}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("PeekFrom(0, 2) = %v, want %v (start before base clamps up)", got, want)
	}

	got = a.PeekFrom(3, 10)
	want = []float32{13, 14}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("PeekFrom(3, 10) = %v, want %v (n clamps to available)", got, want)
	}

	if got := a.PeekFrom(5, 10); got != nil {
		t.Fatalf("PeekFrom at end = %v, want nil", got)
	}
}

func TestAccumulatorReset(t *testing.T) {
	a := NewAccumulator()
	a.Push([]float32{1, 2, 3})
	a.DropBefore(2)
	a.Close()
	a.Reset()

	if got := a.Accumulated(); got != 0 {
		t.Fatalf("Accumulated() after Reset = %d, want 0", got)
	}
	if got := a.Base(); got != 0 {
		t.Fatalf("Base() after Reset = %d, want 0", got)
	}
	a.Push([]float32{9})
	if got := a.Accumulated(); got != 1 {
		t.Fatalf("Accumulated() after Reset+Push = %d, want 1 (Reset must clear closed flag)", got)
	}
}
