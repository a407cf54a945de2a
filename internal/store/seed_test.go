package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestGenerateSnapshotDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	sizes := SeedSizes{Customers: 20, Appointments: 15, Orders: 30}
	a := GenerateSnapshot(now, 7, sizes)
	b := GenerateSnapshot(now, 7, sizes)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("GenerateSnapshot() is not deterministic for equal inputs")
	}
	if len(a.Customers) != 20 || len(a.Appointments) != 15 || len(a.Orders) != 30 {
		t.Fatalf("GenerateSnapshot() sizes = %d/%d/%d", len(a.Customers), len(a.Appointments), len(a.Orders))
	}

	s := NewMemoryStore()
	report, err := s.Load(context.Background(), a)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !report.Clean() {
		t.Fatalf("generated snapshot has issues: %v", report.Issues())
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed", "mock_data.json")
	snap := GenerateSnapshot(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), 1, SeedSizes{Customers: 3, Appointments: 2, Orders: 2})
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if len(got.Customers) != 3 || got.Customers[2].Email != "customer2@example.com" {
		t.Fatalf("ReadSnapshot() customers = %+v", got.Customers)
	}
}

func TestReadSnapshotErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := ReadSnapshot(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadSnapshot(missing) error = %v, want os.ErrNotExist", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(bad); !errors.Is(err, ErrCorruptSeed) {
		t.Fatalf("ReadSnapshot(corrupt) error = %v, want ErrCorruptSeed", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "+15551234567", false},
		{"555.123.4567", "+15551234567", false},
		{"1-555-123-4567", "+15551234567", false},
		{"+44 20 7946 0958", "+442079460958", false},
		{"555-0456", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("NormalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCustomerID(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"42":       "CUST0042",
		"cust42":   "CUST0042",
		"CUST0042": "CUST0042",
		" 7 ":      "CUST0007",
		"abc":      "ABC",
	} {
		if got := NormalizeCustomerID(in); got != want {
			t.Fatalf("NormalizeCustomerID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSQLiteFilePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dsn    string
		want   string
		wantOK bool
	}{
		{"data/leads.db", "data/leads.db", true},
		{"data/leads.db?_pragma=busy_timeout(5000)", "data/leads.db", true},
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"file:/tmp/leads.db?mode=memory", "", false},
	}
	for _, tt := range tests {
		got, ok := sqliteFilePath(tt.dsn)
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("sqliteFilePath(%q) = %q, %v; want %q, %v", tt.dsn, got, ok, tt.want, tt.wantOK)
		}
	}
}
