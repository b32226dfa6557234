package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/docmapper/docmapper/internal/storage"
)

func seedMaster(t *testing.T, path, csv string) storage.Store {
	t.Helper()
	store := storage.NewMemStore()
	if _, errPut := store.Put(context.Background(), path, []byte(csv)); errPut != nil {
		t.Fatalf("seed master: %v", errPut)
	}
	return store
}

func TestLoadMaster_IndexAndLookup(t *testing.T) {
	width := 8
	policy := NormalizePolicy{StripNonDigits: true, Zfill: ZfillSpec{Global: &width}}
	store := seedMaster(t, "masters/accounts.csv",
		"acct,name,plan\nA-123,Acme,Gold\n456,Globex,Silver\n")

	master, err := LoadMaster(context.Background(), store, "masters/accounts.csv", []string{"acct"}, policy)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if master.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", master.RowCount)
	}
	if len(master.Headers) != 3 || master.Headers[0] != "acct" {
		t.Fatalf("unexpected headers %v", master.Headers)
	}

	row, ok := master.Lookup([]string{policy.Normalize("a123", "acct")})
	if !ok {
		t.Fatalf("expected normalized lookup to match")
	}
	if row["plan"] != "Gold" {
		t.Fatalf("unexpected row %v", row)
	}
	if _, ok := master.Lookup([]string{""}); ok {
		t.Fatalf("empty tuple component must never match")
	}
}

func TestLoadMaster_DuplicateKeyLastWins(t *testing.T) {
	store := seedMaster(t, "masters/dup.csv",
		"acct,plan\n123,Gold\n123,Silver\n")

	master, err := LoadMaster(context.Background(), store, "masters/dup.csv", []string{"acct"}, NormalizePolicy{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	row, ok := master.Lookup([]string{"123"})
	if !ok {
		t.Fatalf("expected a match")
	}
	if row["plan"] != "Silver" {
		t.Fatalf("duplicate key must keep the last row, got %v", row)
	}
}

func TestLoadMaster_MultiKeyTuples(t *testing.T) {
	store := seedMaster(t, "masters/multi.csv",
		"acct,region,plan\n1,east,Gold\n1,west,Silver\n")

	master, err := LoadMaster(context.Background(), store, "masters/multi.csv", []string{"acct", "region"}, NormalizePolicy{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	row, ok := master.Lookup([]string{"1", "west"})
	if !ok || row["plan"] != "Silver" {
		t.Fatalf("tuple lookup failed: %v %v", row, ok)
	}
	if _, ok := master.Lookup([]string{"1", "north"}); ok {
		t.Fatalf("unexpected match for absent tuple")
	}
}

func TestLoadMaster_MissingJoinKeyHeader(t *testing.T) {
	store := seedMaster(t, "masters/bad.csv", "name,plan\nAcme,Gold\n")

	_, err := LoadMaster(context.Background(), store, "masters/bad.csv", []string{"acct"}, NormalizePolicy{})
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestLoadMaster_MalformedRowFailsWhole(t *testing.T) {
	store := seedMaster(t, "masters/ragged.csv", "acct,plan\n123,Gold\n456\n")

	_, err := LoadMaster(context.Background(), store, "masters/ragged.csv", []string{"acct"}, NormalizePolicy{})
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for ragged row, got %v", err)
	}
}

func TestLoadMaster_MissingBlob(t *testing.T) {
	store := storage.NewMemStore()

	_, err := LoadMaster(context.Background(), store, "masters/missing.csv", []string{"acct"}, NormalizePolicy{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPreviewMaster(t *testing.T) {
	store := seedMaster(t, "masters/preview.csv",
		"acct, name ,plan\n1,Acme,Gold\n2,Globex,Silver\n3,Initech,Bronze\n")

	preview, err := PreviewMaster(context.Background(), store, "masters/preview.csv")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.RowCount != 3 {
		t.Fatalf("expected 3 rows, got %d", preview.RowCount)
	}
	if preview.Headers[1] != "name" {
		t.Fatalf("headers must be trimmed, got %v", preview.Headers)
	}
}
