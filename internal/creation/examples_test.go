package creation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vitrinehq/vitrine/internal/log"
	"github.com/vitrinehq/vitrine/internal/security"
)

func TestBundledExampleURLs(t *testing.T) {
	urls, err := BundledExampleURLs()
	if err != nil {
		t.Fatalf("BundledExampleURLs() failed: %v", err)
	}
	if len(urls) == 0 {
		t.Fatal("bundled manifest has no examples")
	}
	for _, u := range urls {
		if u == "" {
			t.Error("bundled manifest contains an empty URL")
		}
	}
}

func TestSeedIfEmpty(t *testing.T) {
	good1 := testCreation("example one")
	good2 := testCreation("example two")

	mux := http.NewServeMux()
	mux.HandleFunc("/one.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(good1)
	})
	mux.HandleFunc("/two.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(good2)
	})
	mux.HandleFunc("/broken.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	mux.HandleFunc("/missing.json", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := openTestStore(t)
	seeder := NewSeeder(store, security.NewGuardForTesting(), time.Second, log.NewNop())
	seeder.urls = []string{
		srv.URL + "/one.json",
		srv.URL + "/broken.json",
		srv.URL + "/missing.json",
		srv.URL + "/two.json",
	}

	// Failures are swallowed; the two parsable examples land.
	if got := seeder.SeedIfEmpty(context.Background()); got != 2 {
		t.Errorf("SeedIfEmpty() = %d, want 2", got)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("store has %d creations, want 2", len(list))
	}
}

func TestSeedIfEmptySkipsPopulatedStore(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(context.Background(), testCreation("existing")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	seeder := NewSeeder(store, security.NewGuardForTesting(), time.Second, log.NewNop())
	seeder.urls = []string{srv.URL + "/never.json"}

	if got := seeder.SeedIfEmpty(context.Background()); got != 0 {
		t.Errorf("SeedIfEmpty() = %d on populated store, want 0", got)
	}
	if hits != 0 {
		t.Errorf("seeder fetched %d times from a populated store", hits)
	}
}

func TestSeedIfEmptyRerunDoesNotDuplicate(t *testing.T) {
	example := testCreation("stable example")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(example)
	}))
	defer srv.Close()

	store := openTestStore(t)
	seeder := NewSeeder(store, security.NewGuardForTesting(), time.Second, log.NewNop())
	seeder.urls = []string{srv.URL + "/a.json", srv.URL + "/a.json"}

	// The same example listed twice (or refetched after a crash) imports once.
	if got := seeder.SeedIfEmpty(context.Background()); got != 2 {
		t.Errorf("SeedIfEmpty() = %d, want 2 (second import is a no-op match)", got)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestSeedIfEmptyGuardBlocksLoopback(t *testing.T) {
	example := testCreation("blocked example")

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(example)
	}))
	defer srv.Close()

	store := openTestStore(t)
	seeder := NewSeeder(store, security.NewGuard(), time.Second, log.NewNop())
	seeder.urls = []string{srv.URL + "/a.json"}

	// The production guard refuses the loopback target outright.
	if got := seeder.SeedIfEmpty(context.Background()); got != 0 {
		t.Errorf("SeedIfEmpty() = %d, want 0 for a loopback URL", got)
	}
	if hits != 0 {
		t.Errorf("seeder reached a loopback server %d times", hits)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}
