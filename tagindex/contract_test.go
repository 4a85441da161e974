package tagindex

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

// runIndexContract exercises the behaviour every Index must share. open
// returns a fresh, empty index.
func runIndexContract(t *testing.T, open func(t *testing.T) Index) {
	t.Helper()

	t.Run("ExistsAndInsert", func(t *testing.T) {
		idx := open(t)
		ctx := context.Background()

		ok, err := idx.Exists(ctx, "k1", "a")
		if err != nil || ok {
			t.Fatalf("Exists() on empty = (%v, %v), want (false, nil)", ok, err)
		}
		if err := idx.Insert(ctx, "k1", "a"); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		ok, err = idx.Exists(ctx, "k1", "a")
		if err != nil || !ok {
			t.Errorf("Exists() after insert = (%v, %v), want (true, nil)", ok, err)
		}
		ok, _ = idx.Exists(ctx, "k1", "b")
		if ok {
			t.Error("Exists(k1, b) = true, want false")
		}
	})

	t.Run("EmptyTagIsATag", func(t *testing.T) {
		idx := open(t)
		ctx := context.Background()

		if err := idx.Insert(ctx, "k1", ""); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		assertKeys(t, "In([\"\"])", mustFind(t, idx.FindKeysByTagIn, []string{""}), []string{"k1"})
		assertKeys(t, "NotIn([a])", mustFind(t, idx.FindKeysByTagNotIn, []string{"a"}), []string{"k1"})
	})

	t.Run("FindKeys", func(t *testing.T) {
		idx := open(t)
		seed(t, idx, map[string][]string{
			"k1": {"a", "b"},
			"k2": {"b", "c"},
			"k3": {"c"},
		})

		tests := []struct {
			name string
			find func(context.Context, []string) ([]string, error)
			tags []string
			want []string
		}{
			{"in a", idx.FindKeysByTagIn, []string{"a"}, []string{"k1"}},
			{"in b", idx.FindKeysByTagIn, []string{"b"}, []string{"k1", "k2"}},
			{"in a,c", idx.FindKeysByTagIn, []string{"a", "c"}, []string{"k1", "k2", "k3"}},
			{"in duplicate tags", idx.FindKeysByTagIn, []string{"c", "c"}, []string{"k2", "k3"}},
			{"in unknown", idx.FindKeysByTagIn, []string{"zzz"}, []string{}},
			{"in none", idx.FindKeysByTagIn, nil, []string{}},
			{"not in b", idx.FindKeysByTagNotIn, []string{"b"}, []string{"k3"}},
			{"not in a", idx.FindKeysByTagNotIn, []string{"a"}, []string{"k2", "k3"}},
			{"not in a,c", idx.FindKeysByTagNotIn, []string{"a", "c"}, []string{}},
			{"not in none", idx.FindKeysByTagNotIn, nil, []string{"k1", "k2", "k3"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assertKeys(t, tt.name, mustFind(t, tt.find, tt.tags), tt.want)
			})
		}
	})

	t.Run("DeleteByKey", func(t *testing.T) {
		idx := open(t)
		ctx := context.Background()
		seed(t, idx, map[string][]string{
			"k1": {"a", "b"},
			"k2": {"b"},
		})

		if err := idx.DeleteByKey(ctx, "k1"); err != nil {
			t.Fatalf("DeleteByKey() error = %v", err)
		}
		if err := idx.DeleteByKey(ctx, "k1"); err != nil {
			t.Errorf("DeleteByKey() second call error = %v, want nil", err)
		}
		if err := idx.DeleteByKey(ctx, "missing"); err != nil {
			t.Errorf("DeleteByKey(missing) error = %v, want nil", err)
		}

		assertKeys(t, "In([a,b])", mustFind(t, idx.FindKeysByTagIn, []string{"a", "b"}), []string{"k2"})
		assertKeys(t, "NotIn(nil)", mustFind(t, idx.FindKeysByTagNotIn, nil), []string{"k2"})
		if ok, _ := idx.Exists(ctx, "k1", "a"); ok {
			t.Error("Exists(k1, a) = true after delete")
		}
	})

	t.Run("InsertIfAbsent", func(t *testing.T) {
		idx := open(t)
		up, ok := idx.(Upserter)
		if !ok {
			t.Skip("index does not implement Upserter")
		}
		ctx := context.Background()

		inserted, err := up.InsertIfAbsent(ctx, "k1", "a")
		if err != nil || !inserted {
			t.Fatalf("InsertIfAbsent() first = (%v, %v), want (true, nil)", inserted, err)
		}
		inserted, err = up.InsertIfAbsent(ctx, "k1", "a")
		if err != nil || inserted {
			t.Errorf("InsertIfAbsent() second = (%v, %v), want (false, nil)", inserted, err)
		}
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		idx := open(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i)
				if err := idx.Insert(ctx, key, "shared"); err != nil {
					t.Errorf("Insert(%s) error = %v", key, err)
				}
				if _, err := idx.FindKeysByTagIn(ctx, []string{"shared"}); err != nil {
					t.Errorf("FindKeysByTagIn() error = %v", err)
				}
			}(i)
		}
		wg.Wait()

		keys := mustFind(t, idx.FindKeysByTagIn, []string{"shared"})
		if len(keys) != 8 {
			t.Errorf("keys = %v, want 8 entries", keys)
		}
	})
}

func seed(t *testing.T, idx Index, rows map[string][]string) {
	t.Helper()
	for key, tags := range rows {
		for _, tag := range tags {
			if err := idx.Insert(context.Background(), key, tag); err != nil {
				t.Fatalf("Insert(%q, %q) error = %v", key, tag, err)
			}
		}
	}
}

func mustFind(t *testing.T, find func(context.Context, []string) ([]string, error), tags []string) []string {
	t.Helper()
	keys, err := find(context.Background(), tags)
	if err != nil {
		t.Fatalf("find error = %v", err)
	}
	return keys
}

func assertKeys(t *testing.T, label string, got, want []string) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}
