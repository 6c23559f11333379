package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempSVM(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.svm")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return path
}

func TestReadSVMBasic(t *testing.T) {
	path := writeTempSVM(t, []string{
		"1 1:0.5 3:1.0",
		"0 2:2.0",
	})

	ds, err := ReadSVM(path, SequentialLabels(0), 2, 2, 0)
	if err != nil {
		t.Fatalf("ReadSVM: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ds.Len())
	}

	idx0 := ds.Indices(0)
	if len(idx0) != 2 || idx0[0] != 1 || idx0[1] != 3 {
		t.Fatalf("row 0 indices = %v, want [1 3]", idx0)
	}
	val0 := ds.Values(0)
	if len(val0) != 2 || val0[0] != 0.5 || val0[1] != 1.0 {
		t.Fatalf("row 0 values = %v, want [0.5 1.0]", val0)
	}

	idx1 := ds.Indices(1)
	if len(idx1) != 1 || idx1[0] != 2 {
		t.Fatalf("row 1 indices = %v, want [2]", idx1)
	}
}

func TestReadSVMSequentialLabels(t *testing.T) {
	path := writeTempSVM(t, []string{"1 1:1.0", "1 1:1.0", "1 1:1.0"})
	ds, err := ReadSVM(path, SequentialLabels(10), 3, 1, 0)
	if err != nil {
		t.Fatalf("ReadSVM: %v", err)
	}
	for i := uint64(0); i < 3; i++ {
		if got, want := ds.Label(i), uint32(10)+uint32(i); got != want {
			t.Fatalf("Label(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestReadSVMExplicitLabels(t *testing.T) {
	path := writeTempSVM(t, []string{"0 1:1.0", "0 1:1.0"})
	ds, err := ReadSVM(path, ExplicitLabels([]uint32{42, 99}), 2, 1, 0)
	if err != nil {
		t.Fatalf("ReadSVM: %v", err)
	}
	if ds.Label(0) != 42 || ds.Label(1) != 99 {
		t.Fatalf("labels = [%d %d], want [42 99]", ds.Label(0), ds.Label(1))
	}
}

func TestReadSVMOffsetSkipsLines(t *testing.T) {
	path := writeTempSVM(t, []string{"0 1:9.0", "0 2:8.0", "0 3:7.0"})
	ds, err := ReadSVM(path, SequentialLabels(0), 1, 1, 2)
	if err != nil {
		t.Fatalf("ReadSVM: %v", err)
	}
	idx := ds.Indices(0)
	if len(idx) != 1 || idx[0] != 3 {
		t.Fatalf("expected to skip to third line, got indices %v", idx)
	}
}

func TestReadSVMShortReadErrors(t *testing.T) {
	path := writeTempSVM(t, []string{"0 1:1.0"})
	_, err := ReadSVM(path, SequentialLabels(0), 5, 1, 0)
	if err == nil {
		t.Fatal("expected short-read error")
	}
}

func TestReadSVMOffsetExceedsFileErrors(t *testing.T) {
	path := writeTempSVM(t, []string{"0 1:1.0"})
	_, err := ReadSVM(path, SequentialLabels(0), 1, 1, 10)
	if err == nil {
		t.Fatal("expected short-read error for offset beyond EOF")
	}
}

func TestReadSVMMalformedTokenErrors(t *testing.T) {
	path := writeTempSVM(t, []string{"0 badtoken"})
	_, err := ReadSVM(path, SequentialLabels(0), 1, 1, 0)
	if err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("a.svm", 10, 3, 0)
	b := Fingerprint("a.svm", 10, 3, 0)
	if a != b {
		t.Fatal("Fingerprint is not deterministic for identical inputs")
	}
	c := Fingerprint("a.svm", 10, 3, 1)
	if a == c {
		t.Fatal("Fingerprint did not vary with offset")
	}
}
