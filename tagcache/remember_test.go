package tagcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/tagcache/cache"
)

func TestRemember_MissThenHit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var calls int
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	for range 3 {
		data, err := f.tc.Remember(ctx, "k", []string{"a"}, time.Minute, fn)
		if err != nil || string(data) != "computed" {
			t.Fatalf("Remember() = %q, %v", data, err)
		}
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
	if f.index.RowCount("k", "a") != 1 {
		t.Fatal("Remember did not tag the saved value")
	}
}

func TestRemember_ErrorsAreNotCached(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	errCompute := errors.New("compute failed")

	_, err := f.tc.Remember(ctx, "k", nil, 0, func(context.Context) ([]byte, error) {
		return nil, errCompute
	})
	if !errors.Is(err, errCompute) {
		t.Fatalf("Remember() error = %v, want errCompute", err)
	}
	if f.present(t, "k") {
		t.Fatal("failed computation was cached")
	}
}

func TestRemember_SaveFailureStillReturnsValue(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.failSave = true

	data, err := f.tc.Remember(context.Background(), "k", nil, 0, func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	})
	if err != nil || string(data) != "v" {
		t.Fatalf("Remember() = %q, %v; want v, nil", data, err)
	}
}

func TestRemember_ConcurrentMissesShareOneCall(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.tc.Remember(ctx, "k", nil, 0, fn); err != nil {
				t.Errorf("Remember() error = %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// Late arrivals may miss the shared flight and hit the cache instead.
	if n := calls.Load(); n != 1 {
		t.Fatalf("fn called %d times, want 1", n)
	}
}

func TestRememberInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	keyer := cache.NewDefaultKeyer()

	var calls int
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("v"), nil
	}

	input := map[string]any{"page": 42}
	for range 2 {
		if _, err := f.tc.RememberInput(ctx, keyer, "pages", input, []string{"a"}, 0, fn); err != nil {
			t.Fatalf("RememberInput() error = %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}

	// No namespace: the key cannot be derived and nothing is cached.
	calls = 0
	for range 2 {
		if _, err := f.tc.RememberInput(ctx, keyer, "", input, nil, 0, fn); err != nil {
			t.Fatalf("RememberInput() error = %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2", calls)
	}
}
