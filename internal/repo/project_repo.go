package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/Priyapatil1612/citebase/internal/model"
	"github.com/Priyapatil1612/citebase/internal/pkg/dbutil"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
)

const transitionRetries = 3

type ProjectRepo struct {
	db *sqlx.DB
}

func NewProjectRepo(db *sqlx.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

var projectFields = []string{"id", "name", "description", "topic", "namespace", "state", "summary", "ctime", "mtime"}

func (r *ProjectRepo) Create(ctx context.Context, p *model.Project) error {
	data := map[string]interface{}{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"topic":       p.Topic,
		"namespace":   p.Namespace,
		"state":       string(p.State),
		"ctime":       p.Ctime,
		"mtime":       p.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("projects", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id string) (*model.Project, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *ProjectRepo) GetByNamespace(ctx context.Context, namespace string) (*model.Project, error) {
	return r.getOne(ctx, map[string]interface{}{"namespace": namespace})
}

func (r *ProjectRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Project, error) {
	sqlStr, args, err := builder.BuildSelect("projects", where, projectFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepo) List(ctx context.Context, offset int, limit int) ([]*model.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	where := map[string]interface{}{
		"_orderby": "ctime desc",
		"_limit":   []uint{uint(offset), uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("projects", where, projectFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("projects", map[string]interface{}{"id": id})
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

func (r *ProjectRepo) UpdateInfo(ctx context.Context, id string, name string, description string) error {
	update := map[string]interface{}{
		"name":        name,
		"description": description,
		"mtime":       time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("projects", map[string]interface{}{"id": id}, update)
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

// TransitionState applies a lifecycle event with compare-and-swap on the
// current state, so two concurrent research triggers cannot both win. The
// loop retries a few times when a concurrent writer moved the state first.
func (r *ProjectRepo) TransitionState(ctx context.Context, id string, event model.ResearchEvent) (*model.Project, error) {
	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		p, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := model.Transition(p.State, event)
		if err != nil {
			if p.State == model.StateResearching && event == model.EventStart {
				return nil, appErr.ErrResearchRunning
			}
			return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
		}
		update := map[string]interface{}{
			"state": string(next),
			"mtime": time.Now().UnixMilli(),
		}
		where := map[string]interface{}{
			"id":    id,
			"state": string(p.State),
		}
		sqlStr, args, err := builder.BuildUpdate("projects", where, update)
		if err != nil {
			return nil, err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		res, err := r.db.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected > 0 {
			p.State = next
			return p, nil
		}
		lastErr = fmt.Errorf("project %s state moved concurrently", id)
	}
	return nil, lastErr
}

func (r *ProjectRepo) SaveSummary(ctx context.Context, id string, summary *model.IngestionSummary) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	update := map[string]interface{}{
		"summary": string(blob),
		"mtime":   time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("projects", map[string]interface{}{"id": id}, update)
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

// ListStale returns completed projects whose last update is older than the
// cutoff. The refresh job uses it to pick projects worth re-ingesting.
func (r *ProjectRepo) ListStale(ctx context.Context, before int64, limit int) ([]*model.Project, error) {
	if limit <= 0 {
		limit = 20
	}
	where := map[string]interface{}{
		"state":    string(model.StateCompleted),
		"mtime <": before,
		"_orderby": "mtime asc",
		"_limit":   []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("projects", where, projectFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	var p model.Project
	var state string
	var summary sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Topic, &p.Namespace,
		&state, &summary, &p.Ctime, &p.Mtime); err != nil {
		return nil, err
	}
	p.State = model.ResearchState(state)
	if summary.Valid && summary.String != "" {
		var s model.IngestionSummary
		if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
			return nil, fmt.Errorf("decode project summary: %w", err)
		}
		p.Summary = &s
	}
	return &p, nil
}
