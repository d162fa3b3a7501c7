package alphabridge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
)

func TestMemorySessionStore_TakeIfMatches(t *testing.T) {
	tt := []struct {
		name     string
		put      [][2]string
		serverID string
		username string
		err      error
	}{
		{
			name:     "ConsumesMatchingEntry",
			put:      [][2]string{{"tok1", "Alice"}},
			serverID: "tok1",
			username: "Alice",
			err:      nil,
		},
		{
			name:     "RejectsUnknownServerID",
			put:      [][2]string{{"tok1", "Alice"}},
			serverID: "tok2",
			username: "Alice",
			err:      alphabridge.ErrSessionNotFound,
		},
		{
			name:     "RejectsWrongUsername",
			put:      [][2]string{{"tok1", "Alice"}},
			serverID: "tok1",
			username: "Bob",
			err:      alphabridge.ErrUsernameMismatch,
		},
		{
			name:     "LastWriterWins",
			put:      [][2]string{{"tok1", "Alice"}, {"tok1", "Bob"}},
			serverID: "tok1",
			username: "Bob",
			err:      nil,
		},
		{
			name:     "EmptyStore",
			serverID: "tok1",
			username: "Alice",
			err:      alphabridge.ErrSessionNotFound,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := alphabridge.NewMemorySessionStore()
			for _, put := range tc.put {
				if err := store.Put(ctx, put[0], put[1]); err != nil {
					t.Fatal(err)
				}
			}

			if err := store.TakeIfMatches(ctx, tc.serverID, tc.username); !errors.Is(err, tc.err) {
				t.Errorf("got %v; want %v", err, tc.err)
			}
		})
	}
}

func TestMemorySessionStore_SingleUseConsumption(t *testing.T) {
	ctx := context.Background()
	store := alphabridge.NewMemorySessionStore()

	if err := store.Put(ctx, "tok1", "Alice"); err != nil {
		t.Fatal(err)
	}

	if err := store.TakeIfMatches(ctx, "tok1", "Alice"); err != nil {
		t.Fatalf("first take failed: %v", err)
	}

	if err := store.TakeIfMatches(ctx, "tok1", "Alice"); !errors.Is(err, alphabridge.ErrSessionNotFound) {
		t.Errorf("second take: got %v; want ErrSessionNotFound", err)
	}
}

func TestMemorySessionStore_MismatchDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	store := alphabridge.NewMemorySessionStore()

	if err := store.Put(ctx, "tok1", "Alice"); err != nil {
		t.Fatal(err)
	}

	if err := store.TakeIfMatches(ctx, "tok1", "Bob"); !errors.Is(err, alphabridge.ErrUsernameMismatch) {
		t.Fatalf("got %v; want ErrUsernameMismatch", err)
	}

	// The entry must still be there for the right username.
	if err := store.TakeIfMatches(ctx, "tok1", "Alice"); err != nil {
		t.Errorf("entry was consumed by a mismatching take: %v", err)
	}
}

func TestMemorySessionStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	store := alphabridge.NewMemorySessionStore()

	const n = 100
	serverID := func(i int) string {
		return "tok" + string(rune('A'+i%26)) + string(rune('0'+i%10)) + string(rune('a'+i/26%26))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := serverID(i)
			if err := store.Put(ctx, id, "Alice"); err != nil {
				errs[i] = err
				return
			}
			errs[i] = store.TakeIfMatches(ctx, id, "Alice")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("pair %d: %v", i, err)
		}
	}

	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("store not empty after all takes: %d entries left", n)
	}
}

func TestMemorySessionStore_ConcurrentTakesConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := alphabridge.NewMemorySessionStore()

	if err := store.Put(ctx, "tok1", "Alice"); err != nil {
		t.Fatal(err)
	}

	const n = 32
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.TakeIfMatches(ctx, "tok1", "Alice")
		}(i)
	}
	wg.Wait()

	consumed := 0
	for _, err := range results {
		if err == nil {
			consumed++
		} else if !errors.Is(err, alphabridge.ErrSessionNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if consumed != 1 {
		t.Errorf("entry consumed %d times; want exactly once", consumed)
	}
}

func TestMemorySessionStore_Evict(t *testing.T) {
	ctx := context.Background()
	store := alphabridge.NewMemorySessionStore()

	if err := store.Put(ctx, "old", "Alice"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	if err := store.Put(ctx, "fresh", "Bob"); err != nil {
		t.Fatal(err)
	}

	n, err := store.Evict(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("evicted %d entries; want 1", n)
	}

	if err := store.TakeIfMatches(ctx, "old", "Alice"); !errors.Is(err, alphabridge.ErrSessionNotFound) {
		t.Errorf("stale entry survived eviction: %v", err)
	}
	if err := store.TakeIfMatches(ctx, "fresh", "Bob"); err != nil {
		t.Errorf("fresh entry was evicted: %v", err)
	}
}

func TestMemoryProfileCache_Freshness(t *testing.T) {
	ctx := context.Background()
	cache := alphabridge.NewMemoryProfileCache()

	first := alphabridge.Profile{
		Username: "Alice",
		ID:       uuid.Must(uuid.NewV4()),
		SkinURL:  "https://textures.example.com/skin/1.png",
	}
	second := alphabridge.Profile{
		Username: "Alice",
		ID:       first.ID,
		SkinURL:  "https://textures.example.com/skin/2.png",
		CapeURL:  "https://textures.example.com/cape/2.png",
	}

	if err := cache.Put(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := cache.Get(ctx, "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Errorf("got %+v; want the most recent profile %+v", got, second)
	}
}

func TestMemoryProfileCache_GetAbsent(t *testing.T) {
	cache := alphabridge.NewMemoryProfileCache()

	_, err := cache.Get(context.Background(), "Nobody")
	if !errors.Is(err, alphabridge.ErrProfileNotFound) {
		t.Errorf("got %v; want ErrProfileNotFound", err)
	}
}
