package assets

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yungbote/imagerag/internal/data/repos/testutil"
	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/platform/dbctx"
)

func TestAssetRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewAssetRepo(db, testutil.Logger(t))
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	old := testutil.SeedAsset(t, ctx, tx, "cat.png", base)
	created, err := repo.Create(dbc, []*types.Asset{{
		ID:          uuid.New(),
		FileName:    "cat.png",
		FileLocator: "https://blobs.example.com/public/cat.png",
		Caption:     "a newer cat",
		MimeType:    "image/png",
		CreatedAt:   base.Add(time.Minute),
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	other := testutil.SeedAsset(t, ctx, tx, "dog.jpg", base.Add(2*time.Minute))

	got, err := repo.GetByID(dbc, created[0].ID)
	if err != nil || got == nil || got.Caption != "a newer cat" {
		t.Fatalf("GetByID: got=%+v err=%v", got, err)
	}
	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID missing: got=%+v err=%v", missing, err)
	}

	byName, err := repo.ListByFileName(dbc, "cat.png")
	if err != nil {
		t.Fatalf("ListByFileName: %v", err)
	}
	if len(byName) != 2 || byName[0].ID != old.ID || byName[1].ID != created[0].ID {
		t.Fatalf("ListByFileName: unexpected order: %+v", byName)
	}

	list, err := repo.List(dbc, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != other.ID {
		t.Fatalf("List: want newest first, got %+v", list)
	}

	if err := repo.DeleteByIDs(dbc, []uuid.UUID{old.ID}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	n, err := repo.Count(dbc)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count: want=2 got=%d", n)
	}
}

func TestAssetRepoEmptyInputs(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAssetRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	rows, err := repo.Create(dbc, nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("Create(nil): rows=%v err=%v", rows, err)
	}
	byName, err := repo.ListByFileName(dbc, "  ")
	if err != nil || len(byName) != 0 {
		t.Fatalf("ListByFileName blank: rows=%v err=%v", byName, err)
	}
	if err := repo.DeleteByIDs(dbc, nil); err != nil {
		t.Fatalf("DeleteByIDs(nil): %v", err)
	}
}

func TestPgReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), "unique_violation"},
		{&pgconn.PgError{Code: "40P01"}, "retryable"},
		{&pgconn.PgError{Code: "42P01"}, "pg_42P01"},
		{fmt.Errorf("sqlite: constraint failed"), ""},
	}
	for _, tc := range cases {
		if got := pgReason(tc.err); got != tc.want {
			t.Fatalf("pgReason(%v): want=%q got=%q", tc.err, tc.want, got)
		}
	}
}
