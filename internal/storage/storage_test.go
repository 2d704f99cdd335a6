package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "remibot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "tasks.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestInsertGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			fireAt := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			rec := Record{
				Category: "reminder",
				ID:       "id-1",
				Owner:    42,
				FireAt:   fireAt,
				Payload:  []byte(`{"text":"hello"}`),
			}
			if err := st.Insert(ctx, rec); err != nil {
				t.Fatalf("insert: %v", err)
			}

			got, ok, err := st.Get(ctx, "reminder", "id-1")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if got.Owner != 42 || !got.FireAt.Equal(fireAt) || string(got.Payload) != `{"text":"hello"}` {
				t.Fatalf("got %+v", got)
			}

			// duplicate id must be rejected
			if err := st.Insert(ctx, rec); !errors.Is(err, ErrExists) {
				t.Fatalf("duplicate insert: got %v, want ErrExists", err)
			}

			deleted, err := st.Delete(ctx, "reminder", "id-1")
			if err != nil || !deleted {
				t.Fatalf("delete: deleted=%v err=%v", deleted, err)
			}
			deleted, err = st.Delete(ctx, "reminder", "id-1")
			if err != nil || deleted {
				t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
			}
			if _, ok, _ := st.Get(ctx, "reminder", "id-1"); ok {
				t.Fatal("record still present after delete")
			}
		})
	}
}

func TestListOrderedByFireTime(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			// inserted out of fire-time order on purpose
			for _, r := range []Record{
				{Category: "reminder", ID: "c", Owner: 1, FireAt: base.Add(3 * time.Hour)},
				{Category: "reminder", ID: "a", Owner: 1, FireAt: base.Add(1 * time.Hour)},
				{Category: "reminder", ID: "b", Owner: 2, FireAt: base.Add(2 * time.Hour)},
				{Category: "cooldown", ID: "x", Owner: 1, FireAt: base.Add(time.Minute)},
			} {
				if err := st.Insert(ctx, r); err != nil {
					t.Fatalf("insert %s: %v", r.ID, err)
				}
			}

			all, err := st.ListCategory(ctx, "reminder")
			if err != nil {
				t.Fatalf("list category: %v", err)
			}
			if got := idsOf(all); got != "a,b,c" {
				t.Fatalf("category order = %s, want a,b,c", got)
			}

			mine, err := st.ListOwner(ctx, "reminder", 1)
			if err != nil {
				t.Fatalf("list owner: %v", err)
			}
			if got := idsOf(mine); got != "a,c" {
				t.Fatalf("owner list = %s, want a,c", got)
			}

			n, err := st.CountOwner(ctx, "reminder", 1)
			if err != nil || n != 2 {
				t.Fatalf("count owner = %d err=%v, want 2", n, err)
			}
		})
	}
}

func TestListStableForEqualFireTimes(t *testing.T) {
	ctx := context.Background()
	at := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"first", "second", "third"} {
				if err := st.Insert(ctx, Record{Category: "reminder", ID: id, Owner: 7, FireAt: at}); err != nil {
					t.Fatalf("insert %s: %v", id, err)
				}
			}
			got, err := st.ListOwner(ctx, "reminder", 7)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if idsOf(got) != "first,second,third" {
				t.Fatalf("order = %s, want insertion order", idsOf(got))
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")

	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := Record{Category: "reminder", ID: "keep", Owner: 9, FireAt: time.Now().Add(time.Hour).Truncate(time.Millisecond), Payload: []byte(`{}`)}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.Maintain(ctx); err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, ok, err := st.Get(ctx, "reminder", "keep")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Owner != rec.Owner || !got.FireAt.Equal(rec.FireAt) {
		t.Fatalf("record changed across reopen: %+v", got)
	}
}

func idsOf(recs []Record) string {
	out := ""
	for i, r := range recs {
		if i > 0 {
			out += ","
		}
		out += r.ID
	}
	return out
}
