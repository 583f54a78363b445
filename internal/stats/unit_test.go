package stats

import (
	"errors"
	"fmt"
	"testing"
)

func TestUnitUnknownPairs(t *testing.T) {
	u := NewUnit(7)

	if got := u.UseCount("ctx", "val"); got != 0 {
		t.Fatalf("expected 0 use count for unseen pair, got %d", got)
	}
	if got := u.Recency("ctx", "val"); got != 0 {
		t.Fatalf("expected 0 recency for unseen pair, got %d", got)
	}
	if vals := u.ValuesForContext("ctx"); vals != nil {
		t.Fatalf("expected no values for unseen context, got %v", vals)
	}
}

func TestUnitIncUseCount(t *testing.T) {
	u := NewUnit(0)

	for i := 0; i < 5; i++ {
		u.IncUseCount("ctx", "val")
	}
	if got := u.UseCount("ctx", "val"); got != 5 {
		t.Fatalf("expected 5 uses, got %d", got)
	}

	// A different value under the same context stays independent
	if got := u.UseCount("ctx", "other"); got != 0 {
		t.Fatalf("expected 0 uses for other value, got %d", got)
	}
}

func TestUnitRecencyMonotonic(t *testing.T) {
	u := NewUnit(0)

	u.IncUseCount("ctx", "a")
	u.IncUseCount("other-ctx", "b")
	u.IncUseCount("ctx", "c")

	ra := u.Recency("ctx", "a")
	rb := u.Recency("other-ctx", "b")
	rc := u.Recency("ctx", "c")

	// The sequence is global per unit, not per context
	if !(ra < rb && rb < rc) {
		t.Fatalf("expected strictly increasing recency, got %d %d %d", ra, rb, rc)
	}

	// Re-touching an old pair stamps it newer than everything else
	u.IncUseCount("ctx", "a")
	if got := u.Recency("ctx", "a"); got <= rc {
		t.Fatalf("expected re-touched pair to be newest, got %d <= %d", got, rc)
	}
}

func TestUnitValuesInsertionOrder(t *testing.T) {
	u := NewUnit(0)

	want := []string{"zebra", "apple", "mango"}
	for _, v := range want {
		u.IncUseCount("ctx", v)
	}
	u.IncUseCount("ctx", "apple") // re-touch must not reorder

	got := u.ValuesForContext("ctx")
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestUnitSerializeRoundTrip(t *testing.T) {
	u := NewUnit(42)
	for i := 0; i < 10; i++ {
		context := fmt.Sprintf("ctx-%d", i%3)
		for j := 0; j <= i; j++ {
			u.IncUseCount(context, fmt.Sprintf("val-%d", i))
		}
	}

	restored, err := DeserializeUnit(42, u.Serialize())
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if restored.ID() != 42 {
		t.Fatalf("expected id 42, got %d", restored.ID())
	}

	for i := 0; i < 10; i++ {
		context := fmt.Sprintf("ctx-%d", i%3)
		value := fmt.Sprintf("val-%d", i)
		if restored.UseCount(context, value) != u.UseCount(context, value) {
			t.Fatalf("use count mismatch for (%s, %s)", context, value)
		}
		if restored.Recency(context, value) != u.Recency(context, value) {
			t.Fatalf("recency mismatch for (%s, %s)", context, value)
		}
	}

	// The monotonic counter's high-water mark must survive: a fresh
	// increment on the restored unit outranks everything persisted.
	maxBefore := 0
	for i := 0; i < 10; i++ {
		context := fmt.Sprintf("ctx-%d", i%3)
		if r := restored.Recency(context, fmt.Sprintf("val-%d", i)); r > maxBefore {
			maxBefore = r
		}
	}
	restored.IncUseCount("ctx-0", "fresh")
	if got := restored.Recency("ctx-0", "fresh"); got <= maxBefore {
		t.Fatalf("expected recency above high-water mark %d, got %d", maxBefore, got)
	}
}

func TestUnitDeserializeBadFormat(t *testing.T) {
	u := NewUnit(0)
	u.IncUseCount("ctx", "value-with-some-length")
	u.IncUseCount("ctx", "another-value")
	data := u.Serialize()

	t.Run("empty input", func(t *testing.T) {
		if _, err := DeserializeUnit(0, nil); !errors.Is(err, ErrBadFormat) {
			t.Fatalf("expected ErrBadFormat, got %v", err)
		}
	})

	t.Run("wrong magic", func(t *testing.T) {
		bad := append([]byte{'X', 'X', 'X', 'X'}, data[4:]...)
		if _, err := DeserializeUnit(0, bad); !errors.Is(err, ErrBadFormat) {
			t.Fatalf("expected ErrBadFormat, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		for cut := 1; cut < len(data); cut += 3 {
			if _, err := DeserializeUnit(0, data[:len(data)-cut]); err == nil {
				t.Fatalf("expected error for %d cut bytes", cut)
			}
		}
	})

	t.Run("trailing garbage", func(t *testing.T) {
		bad := append(append([]byte(nil), data...), 0xFF, 0xFF)
		if _, err := DeserializeUnit(0, bad); !errors.Is(err, ErrBadFormat) {
			t.Fatalf("expected ErrBadFormat, got %v", err)
		}
	})
}

func TestUnitEmptyRoundTrip(t *testing.T) {
	restored, err := DeserializeUnit(9, NewUnit(9).Serialize())
	if err != nil {
		t.Fatalf("deserialize of empty unit failed: %v", err)
	}
	if got := restored.UseCount("anything", "at-all"); got != 0 {
		t.Fatalf("expected empty unit, got count %d", got)
	}
}
