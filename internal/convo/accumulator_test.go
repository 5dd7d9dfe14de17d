package convo

import "testing"

func TestTextAccumulator_DeltaAppend(t *testing.T) {
	acc := NewTextAccumulator()
	chunks := []string{"The", " answer", " is", " 42"}
	var got string
	for _, c := range chunks {
		got, _ = acc.Append("m1", c)
	}
	if got != "The answer is 42" {
		t.Errorf("accumulated = %q", got)
	}
}

func TestTextAccumulator_FullReplacement(t *testing.T) {
	acc := NewTextAccumulator()
	acc.Append("m1", "Hello")
	got, changed := acc.Append("m1", "Hello world")
	if got != "Hello world" || !changed {
		t.Errorf("got = %q changed = %v, want prefix chunk adopted wholesale", got, changed)
	}
	// a replacement must never double the prefix
	if acc.Get("m1") == "HelloHello world" {
		t.Error("prefix was appended instead of replaced")
	}
}

func TestTextAccumulator_DuplicateChunkNoOp(t *testing.T) {
	acc := NewTextAccumulator()
	acc.Append("m1", "same")
	got, changed := acc.Append("m1", "same")
	if changed {
		t.Error("identical chunk must report no change")
	}
	if got != "same" {
		t.Errorf("got = %q", got)
	}
}

func TestTextAccumulator_MixedDeltaAndSnapshot(t *testing.T) {
	// snapshot streams re-send the full text each time; each chunk is a
	// strict extension of the prior and must replace, not append
	acc := NewTextAccumulator()
	snapshots := []string{"H", "He", "Hel", "Hell", "Hello"}
	var got string
	for _, s := range snapshots {
		got, _ = acc.Append("m1", s)
	}
	if got != "Hello" {
		t.Errorf("accumulated = %q, want %q", got, "Hello")
	}
}

func TestTextAccumulator_IndependentMessages(t *testing.T) {
	acc := NewTextAccumulator()
	acc.Append("a", "one")
	acc.Append("b", "two")
	if acc.Get("a") != "one" || acc.Get("b") != "two" {
		t.Errorf("a=%q b=%q", acc.Get("a"), acc.Get("b"))
	}
}

func TestTextAccumulator_EmptyChunkIgnored(t *testing.T) {
	acc := NewTextAccumulator()
	acc.Append("m1", "text")
	got, changed := acc.Append("m1", "")
	if changed || got != "text" {
		t.Errorf("got = %q changed = %v", got, changed)
	}
}
