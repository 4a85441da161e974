package tagindex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T, cfg SQLiteConfig) *SQLiteIndex {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "index.db")
	}
	idx, err := OpenSQLite(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_Contract(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index {
		return openTestSQLite(t, SQLiteConfig{})
	})
}

func TestSQLiteIndex_InsertAllowsDuplicates(t *testing.T) {
	idx := openTestSQLite(t, SQLiteConfig{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := idx.Insert(ctx, "k1", "a"); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	var rows int
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tag_mappings WHERE cache_key = 'k1'").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Errorf("rows = %d, want 2", rows)
	}

	keys, err := idx.FindKeysByTagIn(ctx, []string{"a"})
	if err != nil || len(keys) != 1 {
		t.Errorf("FindKeysByTagIn() = (%v, %v), want one distinct key", keys, err)
	}
}

func TestSQLiteIndex_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := first.Insert(ctx, "k1", "a"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	_ = first.Close()

	second := openTestSQLite(t, SQLiteConfig{Path: path})
	ok, err := second.Exists(ctx, "k1", "a")
	if err != nil || !ok {
		t.Errorf("Exists() after reopen = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestSQLiteIndex_CustomTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	pages := openTestSQLite(t, SQLiteConfig{Path: path, Table: "page_tags"})
	menus := openTestSQLite(t, SQLiteConfig{Path: path, Table: "menu_tags"})

	if pages.Table() != "page_tags" {
		t.Errorf("Table() = %q, want page_tags", pages.Table())
	}
	if err := pages.Insert(ctx, "k1", "a"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	keys, err := menus.FindKeysByTagIn(ctx, []string{"a"})
	if err != nil || len(keys) != 0 {
		t.Errorf("other table FindKeysByTagIn() = (%v, %v), want empty", keys, err)
	}
}

func TestOpenSQLite_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SQLiteConfig
	}{
		{name: "empty path", cfg: SQLiteConfig{Path: "  "}},
		{name: "bad table", cfg: SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db"), Table: "tags; DROP TABLE x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenSQLite(context.Background(), tt.cfg); err == nil {
				t.Error("OpenSQLite() error = nil, want error")
			}
		})
	}
}

func TestSQLiteIndex_ManyTags(t *testing.T) {
	idx := openTestSQLite(t, SQLiteConfig{})
	ctx := context.Background()

	tags := make([]string, 200)
	for i := range tags {
		tags[i] = fmt.Sprintf("t%03d", i)
	}
	if err := idx.Insert(ctx, "k1", tags[199]); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	keys, err := idx.FindKeysByTagIn(ctx, tags)
	if err != nil || len(keys) != 1 {
		t.Errorf("FindKeysByTagIn() = (%v, %v), want [k1]", keys, err)
	}
}

func TestSQLiteIndex_ClosedHandle(t *testing.T) {
	idx := openTestSQLite(t, SQLiteConfig{})
	_ = idx.Close()

	if err := idx.Ping(context.Background()); err == nil {
		t.Error("Ping() after Close = nil, want error")
	}
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE t (id INTEGER);\n-- +migrate Down\nDROP TABLE t;\n"
	got := extractUpMigration(content)
	if got != "\nCREATE TABLE t (id INTEGER);\n" {
		t.Errorf("extractUpMigration() = %q", got)
	}
	if got := extractUpMigration("SELECT 1;"); got != "SELECT 1;" {
		t.Errorf("extractUpMigration(no markers) = %q", got)
	}
}

func TestClassifySQLite(t *testing.T) {
	err := classifySQLite("insert", errors.New("boom"))
	if errors.Is(err, ErrBusy) {
		t.Error("plain error classified as busy")
	}
}
