package queryresult

import "testing"

func TestNewShape(t *testing.T) {
	r := New(3, 5)
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if r.K() != 5 {
		t.Fatalf("K() = %d, want 5", r.K())
	}
	for i := uint64(0); i < 3; i++ {
		if r.RowLen(i) != 0 {
			t.Fatalf("RowLen(%d) = %d, want 0", i, r.RowLen(i))
		}
	}
}

func TestSetLabelAndRow(t *testing.T) {
	r := New(2, 4)
	r.SetLabel(0, 0, 10)
	r.SetLabel(0, 1, 20)
	r.SetRowLen(0, 2)

	row := r.Row(0)
	if len(row) != 2 || row[0] != 10 || row[1] != 20 {
		t.Fatalf("Row(0) = %v, want [10 20]", row)
	}
}

func TestRowsIndependent(t *testing.T) {
	r := New(2, 3)
	r.SetLabel(0, 0, 1)
	r.SetRowLen(0, 1)
	r.SetLabel(1, 0, 2)
	r.SetLabel(1, 1, 3)
	r.SetRowLen(1, 2)

	if len(r.Row(0)) != 1 {
		t.Fatalf("Row(0) length = %d, want 1", len(r.Row(0)))
	}
	if len(r.Row(1)) != 2 {
		t.Fatalf("Row(1) length = %d, want 2", len(r.Row(1)))
	}
}
