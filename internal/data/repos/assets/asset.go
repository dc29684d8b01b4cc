package assets

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/platform/dbctx"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

type AssetRepo interface {
	Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error)

	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Asset, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error)
	ListByFileName(dbc dbctx.Context, fileName string) ([]*types.Asset, error)
	List(dbc dbctx.Context, limit int) ([]*types.Asset, error)
	Count(dbc dbctx.Context) (int64, error)

	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if dbc.Ctx != nil {
		t = t.WithContext(dbc.Ctx)
	}
	return t
}

func (r *assetRepo) Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error) {
	if len(rows) == 0 {
		return []*types.Asset{}, nil
	}
	if err := r.tx(dbc).Create(&rows).Error; err != nil {
		if reason := pgReason(err); reason != "" {
			return nil, types.CatalogError("catalog.create", err, "insert %d rows: %s", len(rows), reason)
		}
		return nil, types.CatalogError("catalog.create", err, "insert %d rows", len(rows))
	}
	return rows, nil
}

func (r *assetRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Asset, error) {
	var out []*types.Asset
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, types.CatalogError("catalog.get", err, "lookup %d ids", len(ids))
	}
	return out, nil
}

// GetByID returns nil, nil when the row does not exist.
func (r *assetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByFileName returns every row for the name, oldest first.
func (r *assetRepo) ListByFileName(dbc dbctx.Context, fileName string) ([]*types.Asset, error) {
	var out []*types.Asset
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return out, nil
	}
	if err := r.tx(dbc).
		Where("file_name = ?", fileName).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, types.CatalogError("catalog.list_by_name", err, "file_name=%q", fileName)
	}
	return out, nil
}

// List returns the newest rows first.
func (r *assetRepo) List(dbc dbctx.Context, limit int) ([]*types.Asset, error) {
	var out []*types.Asset
	q := r.tx(dbc).Order("created_at DESC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, types.CatalogError("catalog.list", err, "limit=%d", limit)
	}
	return out, nil
}

func (r *assetRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	if err := r.tx(dbc).Model(&types.Asset{}).Count(&n).Error; err != nil {
		return 0, types.CatalogError("catalog.count", err, "count")
	}
	return n, nil
}

func (r *assetRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.tx(dbc).Where("id IN ?", ids).Delete(&types.Asset{}).Error; err != nil {
		return types.CatalogError("catalog.delete", err, "delete %d ids", len(ids))
	}
	return nil
}

// pgReason names the postgres failure class; empty for other drivers.
func pgReason(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	switch strings.TrimSpace(pgErr.Code) {
	case "23505":
		return "unique_violation"
	case "40001", "40P01", "55P03":
		return "retryable"
	default:
		return "pg_" + pgErr.Code
	}
}
