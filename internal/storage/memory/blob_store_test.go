package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("name,district\n")
	uri, err := store.PutObject(context.Background(), "run/openrice_restaurants.csv", "text/csv", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://run/openrice_restaurants.csv" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'N'

	obj, ok := store.Get("run/openrice_restaurants.csv")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	if string(obj.Data) != "name,district\n" {
		t.Fatalf("expected stored copy to be immutable, got %q", obj.Data)
	}
	if obj.ContentType != "text/csv" {
		t.Fatalf("content type = %q", obj.ContentType)
	}

	obj.Data[0] = 'X'
	again, _ := store.Get("run/openrice_restaurants.csv")
	if string(again.Data) != "name,district\n" {
		t.Fatalf("Get should return a copy, got %q", again.Data)
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewBlobStore().PutObject(context.Background(), " ", "", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestBlobStorePathsSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.json", "a.csv", "c.json"} {
		if _, err := store.PutObject(context.Background(), p, "", bytes.NewReader([]byte(p))); err != nil {
			t.Fatalf("PutObject(%s) error = %v", p, err)
		}
	}
	got := store.Paths()
	want := []string{"a.csv", "b.json", "c.json"}
	if len(got) != len(want) {
		t.Fatalf("Paths() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Paths() = %v, want %v", got, want)
		}
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected missing object")
	}
}
