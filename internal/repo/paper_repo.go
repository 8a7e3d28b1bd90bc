package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperqa/internal/model"
	"github.com/xxxsen/paperqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

var paperListFields = []string{"id", "name", "filename", "status", "fail_reason", "chunk_count", "page_count", "ctime", "mtime"}

type PaperRepo struct {
	db *sql.DB
}

func NewPaperRepo(db *sql.DB) *PaperRepo {
	return &PaperRepo{db: db}
}

func (r *PaperRepo) Create(ctx context.Context, paper *model.Paper) error {
	data := map[string]interface{}{
		"id":          paper.ID,
		"name":        paper.Name,
		"filename":    paper.Filename,
		"raw_text":    paper.RawText,
		"status":      string(paper.Status),
		"fail_reason": paper.FailReason,
		"chunk_count": paper.ChunkCount,
		"page_count":  paper.PageCount,
		"ctime":       paper.Ctime,
		"mtime":       paper.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("papers", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// Update overwrites every mutable column of an existing paper.
func (r *PaperRepo) Update(ctx context.Context, paper *model.Paper) error {
	where := map[string]interface{}{"id": paper.ID}
	update := map[string]interface{}{
		"name":        paper.Name,
		"filename":    paper.Filename,
		"raw_text":    paper.RawText,
		"status":      string(paper.Status),
		"fail_reason": paper.FailReason,
		"chunk_count": paper.ChunkCount,
		"page_count":  paper.PageCount,
		"mtime":       paper.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("papers", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *PaperRepo) Get(ctx context.Context, id string) (*model.Paper, error) {
	fields := append(append([]string{}, paperListFields...), "raw_text")
	sqlStr, args, err := builder.BuildSelect("papers", map[string]interface{}{"id": id}, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var paper model.Paper
	var status string
	if err := row.Scan(&paper.ID, &paper.Name, &paper.Filename, &status, &paper.FailReason,
		&paper.ChunkCount, &paper.PageCount, &paper.Ctime, &paper.Mtime, &paper.RawText); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	paper.Status = model.PaperStatus(status)
	return &paper, nil
}

// List returns papers newest first, without their raw text.
func (r *PaperRepo) List(ctx context.Context) ([]*model.Paper, error) {
	where := map[string]interface{}{"_orderby": "ctime desc"}
	sqlStr, args, err := builder.BuildSelect("papers", where, paperListFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryList(ctx, sqlStr, args)
}

// ListStale returns papers still in one of statuses whose last update is older than before.
func (r *PaperRepo) ListStale(ctx context.Context, statuses []model.PaperStatus, before int64) ([]*model.Paper, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]interface{}, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	where := map[string]interface{}{
		"status in": values,
		"mtime <":   before,
	}
	sqlStr, args, err := builder.BuildSelect("papers", where, paperListFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryList(ctx, sqlStr, args)
}

func (r *PaperRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("papers", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *PaperRepo) CountByStatus(ctx context.Context, status model.PaperStatus) (int, error) {
	sqlStr, args, err := builder.BuildSelect("papers", map[string]interface{}{"status": string(status)}, []string{"COUNT(1)"})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PaperRepo) queryList(ctx context.Context, sqlStr string, args []interface{}) ([]*model.Paper, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]*model.Paper, 0)
	for rows.Next() {
		var paper model.Paper
		var status string
		if err := rows.Scan(&paper.ID, &paper.Name, &paper.Filename, &status, &paper.FailReason,
			&paper.ChunkCount, &paper.PageCount, &paper.Ctime, &paper.Mtime); err != nil {
			return nil, err
		}
		paper.Status = model.PaperStatus(status)
		items = append(items, &paper)
	}
	return items, rows.Err()
}
