package vector

import "testing"

func TestNewVectorIndex_Flat(t *testing.T) {
	idx, err := NewVectorIndex("flat", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(flat): %v", err)
	}
	if _, err := idx.Append([]float32{1, 0, 0}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if idx.Type() != "flat" {
		t.Errorf("Type=%s", idx.Type())
	}
}

func TestNewVectorIndex_DefaultsAndAliases(t *testing.T) {
	for _, name := range []string{"", "memory"} {
		idx, err := NewVectorIndex(name, 3)
		if err != nil {
			t.Fatalf("NewVectorIndex(%q): %v", name, err)
		}
		if idx.Dimensions() != 3 {
			t.Errorf("Dimensions=%d", idx.Dimensions())
		}
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	if _, err := NewVectorIndex("hnsw", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimensions(t *testing.T) {
	if _, err := NewVectorIndex("flat", 0); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
