package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach-controlplane/pkg/db"
	"outreach-controlplane/pkg/db/pagination"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

type ListParams struct {
	CompanyID string
	Type      Type
	Cursor    string
	Limit     int
}

type HistoryParams struct {
	CompanyID  string
	WorkflowID string
	Cursor     string
	Limit      int
}

type Repository interface {
	Create(ctx context.Context, wf *Workflow) error
	Update(ctx context.Context, wf *Workflow) error
	Get(ctx context.Context, companyID, id string) (*Workflow, error)
	List(ctx context.Context, p ListParams) ([]*Workflow, *pagination.PageInfo, error)
	ListScheduled(ctx context.Context) ([]*Workflow, error)
	SoftDelete(ctx context.Context, companyID, id string) error

	CreateHistory(ctx context.Context, h *History) error
	FinishHistory(ctx context.Context, h *History) error
	ListHistories(ctx context.Context, p HistoryParams) ([]*History, *pagination.PageInfo, error)
	LastCursor(ctx context.Context, workflowID string) (string, error)
	RunCount(ctx context.Context, workflowID string) (int64, error)
	PendingFollowUp(ctx context.Context, parentID string) (bool, error)
}

type gormRepository struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewRepository(db *gorm.DB, node *snowflake.Node) Repository {
	return &gormRepository{db: db, node: node}
}

func (r *gormRepository) Create(ctx context.Context, wf *Workflow) error {
	if wf.ID == "" {
		wf.ID = r.node.Generate().String()
	}
	return r.db.WithContext(ctx).Create(wf).Error
}

// Update rewrites the mutable definition fields of a live workflow.
func (r *gormRepository) Update(ctx context.Context, wf *Workflow) error {
	res := r.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(db.NotDeleted).
		Where("company_id = ? AND id = ?", wf.CompanyID, wf.ID).
		Select("*").
		Omit("id", "company_id", "created_at", "deleted_at").
		Updates(wf)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (r *gormRepository) Get(ctx context.Context, companyID, id string) (*Workflow, error) {
	var wf Workflow
	err := r.db.WithContext(ctx).
		Scopes(db.NotDeleted).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *gormRepository) List(ctx context.Context, p ListParams) ([]*Workflow, *pagination.PageInfo, error) {
	page := pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit}.Normalize()

	query := r.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(db.NotDeleted).
		Where("company_id = ?", p.CompanyID)
	if p.Type != "" {
		query = query.Where("type = ?", p.Type)
	}
	query, err := afterCursor(query, page.Cursor)
	if err != nil {
		return nil, nil, err
	}

	var out []*Workflow
	if err := query.Order("created_at DESC").Order("id DESC").Limit(page.Limit + 1).Find(&out).Error; err != nil {
		return nil, nil, err
	}
	return pagination.BuildCursorPageInfo(out, page.Limit, func(wf *Workflow) pagination.Cursor {
		return pagination.Cursor{CreatedAt: wf.CreatedAt, ID: wf.ID}
	})
}

// ListScheduled returns every live workflow with at least one populated
// schedule dimension.
func (r *gormRepository) ListScheduled(ctx context.Context) ([]*Workflow, error) {
	var out []*Workflow
	err := r.db.WithContext(ctx).
		Scopes(db.NotDeleted, hasSchedule).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

var scheduleColumns = []string{"scheduled_hours", "scheduled_days", "scheduled_weekdays", "scheduled_months"}

// hasSchedule matches workflows with at least one non-empty schedule list.
// Empty lists are stored as the JSON literals null or [].
func hasSchedule(tx *gorm.DB) *gorm.DB {
	conds := make([]string, 0, len(scheduleColumns))
	for _, col := range scheduleColumns {
		conds = append(conds, "("+col+" IS NOT NULL AND "+col+" NOT IN ('null', '[]'))")
	}
	return tx.Where(strings.Join(conds, " OR "))
}

func (r *gormRepository) SoftDelete(ctx context.Context, companyID, id string) error {
	res := r.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(db.NotDeleted).
		Where("company_id = ? AND id = ?", companyID, id).
		Updates(map[string]any{
			"deleted_at": db.DeletedAt(time.Now()),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (r *gormRepository) CreateHistory(ctx context.Context, h *History) error {
	if h.ID == "" {
		h.ID = r.node.Generate().String()
	}
	if h.Status == "" {
		h.Status = HistoryPending
	}
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *gormRepository) FinishHistory(ctx context.Context, h *History) error {
	if h.FinishedAt == nil {
		now := time.Now().UTC()
		h.FinishedAt = &now
	}
	res := r.db.WithContext(ctx).Model(&History{}).
		Where("id = ?", h.ID).
		Updates(map[string]any{
			"status":        h.Status,
			"cursor":        h.Cursor,
			"processed":     h.Processed,
			"succeeded":     h.Succeeded,
			"failed":        h.Failed,
			"error_message": h.ErrorMessage,
			"export_key":    h.ExportKey,
			"finished_at":   h.FinishedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("history %s not found", h.ID)
	}
	return nil
}

func (r *gormRepository) ListHistories(ctx context.Context, p HistoryParams) ([]*History, *pagination.PageInfo, error) {
	page := pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit}.Normalize()

	query := r.db.WithContext(ctx).Model(&History{}).
		Where("company_id = ? AND workflow_id = ?", p.CompanyID, p.WorkflowID)
	query, err := afterCursor(query, page.Cursor)
	if err != nil {
		return nil, nil, err
	}

	var out []*History
	if err := query.Order("created_at DESC").Order("id DESC").Limit(page.Limit + 1).Find(&out).Error; err != nil {
		return nil, nil, err
	}
	return pagination.BuildCursorPageInfo(out, page.Limit, func(h *History) pagination.Cursor {
		return pagination.Cursor{CreatedAt: h.CreatedAt, ID: h.ID}
	})
}

// LastCursor is the pagination cursor recorded by the latest finished run.
func (r *gormRepository) LastCursor(ctx context.Context, workflowID string) (string, error) {
	var h History
	err := r.db.WithContext(ctx).
		Where("workflow_id = ? AND status <> ?", workflowID, HistoryPending).
		Order("created_at DESC").Order("id DESC").
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return h.Cursor, err
}

func (r *gormRepository) RunCount(ctx context.Context, workflowID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&History{}).Where("workflow_id = ?", workflowID).Count(&n).Error
	return n, err
}

// PendingFollowUp reports whether parentID already has a live follow-up
// workflow that has not run yet.
func (r *gormRepository) PendingFollowUp(ctx context.Context, parentID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Workflow{}).
		Scopes(db.NotDeleted).
		Where("parent_workflow_id = ?", parentID).
		Where("NOT EXISTS (SELECT 1 FROM workflow_histories h WHERE h.workflow_id = workflows.id)").
		Count(&n).Error
	return n > 0, err
}

func afterCursor(query *gorm.DB, cursor string) (*gorm.DB, error) {
	if cursor == "" {
		return query, nil
	}
	cur, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	return query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cur.CreatedAt, cur.CreatedAt, cur.ID), nil
}
