package lead

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach-controlplane/pkg/db"
	"outreach-controlplane/pkg/db/pagination"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidLead = errors.New("invalid lead")

// EligibleQuery selects the leads an upstream-targeting workflow may act on.
type EligibleQuery struct {
	CompanyID        string
	UpstreamWorkflow string
	Statuses         []Status
	// QueuedBy additionally selects leads claimed by this workflow in QueuedStatuses.
	QueuedBy       string
	QueuedStatuses []Status
	Limit          int
}

type ListParams struct {
	CompanyID  string
	WorkflowID string
	Status     Status
	Cursor     string
	Limit      int
}

type ReplyKind string

const (
	ReplyInvitationAccepted ReplyKind = "invitation_accepted"
	ReplyMessageReceived    ReplyKind = "message_received"
)

type Store interface {
	UpsertBatch(ctx context.Context, leads []*Lead) error
	ListEligible(ctx context.Context, q EligibleQuery) ([]*Lead, error)
	FindByPrivateIdentifiers(ctx context.Context, companyID string, ids []string) (map[string]*Lead, error)
	List(ctx context.Context, p ListParams) ([]*Lead, *pagination.PageInfo, error)
	MarkReplied(ctx context.Context, companyID, privateID string, kind ReplyKind, at time.Time) (bool, error)
}

type gormStore struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewStore(db *gorm.DB, node *snowflake.Node) Store {
	return &gormStore{db: db, node: node}
}

// UpsertBatch writes every lead in one transaction. Each lead is keyed by
// (company, private identifier) when known and by (company, public
// identifier, workflow) otherwise. Existing rows keep their filled fields and
// their status only moves forward.
func (s *gormStore) UpsertBatch(ctx context.Context, leads []*Lead) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	if len(leads) == 0 {
		return nil
	}
	for _, l := range leads {
		if err := validate(l); err != nil {
			return err
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range leads {
			if err := s.upsertOne(tx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func validate(l *Lead) error {
	switch {
	case l == nil:
		return fmt.Errorf("%w: nil lead", ErrInvalidLead)
	case l.CompanyID == "":
		return fmt.Errorf("%w: company_id is required", ErrInvalidLead)
	case l.Provisional() && l.PublicIdentifier == "":
		return fmt.Errorf("%w: private or public identifier is required", ErrInvalidLead)
	case l.LatestStatus != "" && !l.LatestStatus.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidLead, l.LatestStatus)
	}
	return nil
}

func (s *gormStore) upsertOne(tx *gorm.DB, in *Lead) error {
	existing, err := s.findExisting(tx, in)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		inserted, err := s.insert(tx, in)
		if err != nil || inserted {
			return err
		}
		// another writer created the row after the lookup; merge into it
		existing, err = s.findExisting(tx, in)
		if err != nil {
			return fmt.Errorf("resolve conflicting lead: %w", err)
		}
	} else if err != nil {
		return err
	}

	now := time.Now().UTC()
	updates := map[string]any{}

	merged := *existing
	mergeInto(&merged, in)
	for col, pair := range map[string][2]any{
		"public_identifier": {existing.PublicIdentifier, merged.PublicIdentifier},
		"first_name":        {existing.FirstName, merged.FirstName},
		"last_name":         {existing.LastName, merged.LastName},
		"full_name":         {existing.FullName, merged.FullName},
		"headline":          {existing.Headline, merged.Headline},
		"location":          {existing.Location, merged.Location},
		"company":           {existing.Company, merged.Company},
		"profile_url":       {existing.ProfileURL, merged.ProfileURL},
		"network_distance":  {existing.NetworkDistance, merged.NetworkDistance},
		"provider_id":       {existing.ProviderID, merged.ProviderID},
		"invitation_id":     {existing.InvitationID, merged.InvitationID},
		"chat_id":           {existing.ChatID, merged.ChatID},
		"connections_count": {existing.ConnectionsCount, merged.ConnectionsCount},
	} {
		if pair[0] != pair[1] {
			updates[col] = pair[1]
		}
	}
	if string(merged.Profile) != string(existing.Profile) {
		updates["profile"] = merged.Profile
	}
	if existing.Provisional() && !in.Provisional() {
		updates["private_identifier"] = in.PrivateID()
	}
	if in.LastError != "" || in.LatestStatus.Rank() > existing.StatusRank {
		updates["last_error"] = in.LastError
	}
	for col, ts := range map[string]*time.Time{
		"searched_at":              in.SearchedAt,
		"queued_at":                in.QueuedAt,
		"invitation_sent_at":       in.InvitationSentAt,
		"invitation_replied_at":    in.InvitationRepliedAt,
		"first_message_sent_at":    in.FirstMessageSentAt,
		"first_message_replied_at": in.FirstMessageRepliedAt,
	} {
		if ts != nil {
			updates[col] = gorm.Expr("COALESCE("+col+", ?)", ts.UTC())
		}
	}

	if len(updates) > 0 {
		updates["updated_at"] = now
		if err := tx.Model(&Lead{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update lead %s: %w", existing.ID, err)
		}
	}

	if in.LatestStatus == "" {
		return nil
	}

	status := map[string]any{
		"latest_status": in.LatestStatus,
		"status_rank":   in.LatestStatus.Rank(),
		"updated_at":    now,
	}
	if in.LatestStatus.Queued() {
		if in.QueuedByWorkflowID != "" {
			status["queued_by_workflow_id"] = in.QueuedByWorkflowID
		}
	} else if in.LastWorkflowID != "" {
		status["last_workflow_id"] = in.LastWorkflowID
	}

	// the rank guard keeps concurrent executions from regressing the lead
	return tx.Model(&Lead{}).
		Where("id = ? AND status_rank <= ?", existing.ID, in.LatestStatus.Rank()).
		Updates(status).Error
}

// insert reports false when a row with the same key already exists.
func (s *gormStore) insert(tx *gorm.DB, in *Lead) (bool, error) {
	row := *in
	if row.ID == "" {
		row.ID = s.node.Generate().String()
	}
	if row.LatestStatus == "" {
		row.LatestStatus = StatusSearched
	}
	row.StatusRank = row.LatestStatus.Rank()
	if row.LastWorkflowID == "" && !row.LatestStatus.Queued() {
		row.LastWorkflowID = row.WorkflowID
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert lead: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	in.ID = row.ID
	return true, nil
}

// findExisting resolves the row an incoming lead maps to. A resolved lead also
// adopts a provisional row with the same public identifier.
func (s *gormStore) findExisting(tx *gorm.DB, in *Lead) (*Lead, error) {
	scoped := func() *gorm.DB {
		return tx.Model(&Lead{}).Scopes(db.NotDeleted).Where("company_id = ?", in.CompanyID)
	}

	var row Lead
	if !in.Provisional() {
		err := scoped().Where("private_identifier = ?", in.PrivateID()).First(&row).Error
		if !errors.Is(err, gorm.ErrRecordNotFound) || in.PublicIdentifier == "" {
			return &row, err
		}
		err = scoped().
			Where("private_identifier IS NULL AND public_identifier = ?", in.PublicIdentifier).
			Order("created_at ASC").
			First(&row).Error
		return &row, err
	}

	// a provisional write may target a lead that was already resolved elsewhere
	err := scoped().Where("private_identifier IS NOT NULL AND public_identifier = ?", in.PublicIdentifier).First(&row).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return &row, err
	}
	err = scoped().
		Where("private_identifier IS NULL AND public_identifier = ? AND workflow_id = ?", in.PublicIdentifier, in.WorkflowID).
		First(&row).Error
	return &row, err
}

func (s *gormStore) ListEligible(ctx context.Context, q EligibleQuery) ([]*Lead, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if q.CompanyID == "" || q.UpstreamWorkflow == "" {
		return nil, fmt.Errorf("%w: company and upstream workflow are required", ErrInvalidLead)
	}

	query := s.db.WithContext(ctx).Model(&Lead{}).
		Scopes(db.NotDeleted).
		Where("company_id = ?", q.CompanyID)

	produced := s.db.Where("(workflow_id = ? OR last_workflow_id = ?) AND latest_status IN ?", q.UpstreamWorkflow, q.UpstreamWorkflow, q.Statuses)
	if q.QueuedBy != "" && len(q.QueuedStatuses) > 0 {
		produced = produced.Or("queued_by_workflow_id = ? AND latest_status IN ?", q.QueuedBy, q.QueuedStatuses)
	}
	query = query.Where(produced).Order("created_at ASC").Order("id ASC")

	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var leads []*Lead
	if err := query.Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

func (s *gormStore) FindByPrivateIdentifiers(ctx context.Context, companyID string, ids []string) (map[string]*Lead, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	out := make(map[string]*Lead, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var leads []*Lead
	err := s.db.WithContext(ctx).
		Scopes(db.NotDeleted).
		Where("company_id = ? AND private_identifier IN ?", companyID, ids).
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	for _, l := range leads {
		out[l.PrivateID()] = l
	}
	return out, nil
}

func (s *gormStore) List(ctx context.Context, p ListParams) ([]*Lead, *pagination.PageInfo, error) {
	if s == nil || s.db == nil {
		return nil, nil, gorm.ErrInvalidDB
	}
	page := pagination.Pagination{Cursor: p.Cursor, Limit: p.Limit}.Normalize()

	query := s.db.WithContext(ctx).Model(&Lead{}).
		Scopes(db.NotDeleted).
		Where("company_id = ?", p.CompanyID)
	if p.WorkflowID != "" {
		query = query.Where("workflow_id = ? OR last_workflow_id = ?", p.WorkflowID, p.WorkflowID)
	}
	if p.Status != "" {
		query = query.Where("latest_status = ?", p.Status)
	}
	if page.Cursor != "" {
		cur, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}

	var leads []*Lead
	if err := query.Order("created_at DESC").Order("id DESC").Limit(page.Limit + 1).Find(&leads).Error; err != nil {
		return nil, nil, err
	}

	return pagination.BuildCursorPageInfo(leads, page.Limit, func(l *Lead) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
}

// MarkReplied records the first reply of the given kind. It returns false when
// no lead matches.
func (s *gormStore) MarkReplied(ctx context.Context, companyID, privateID string, kind ReplyKind, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, gorm.ErrInvalidDB
	}

	var col string
	switch kind {
	case ReplyInvitationAccepted:
		col = "invitation_replied_at"
	case ReplyMessageReceived:
		col = "first_message_replied_at"
	default:
		return false, fmt.Errorf("%w: unknown reply kind %q", ErrInvalidLead, kind)
	}

	res := s.db.WithContext(ctx).Model(&Lead{}).
		Scopes(db.NotDeleted).
		Where("company_id = ? AND private_identifier = ?", companyID, privateID).
		Updates(map[string]any{
			col:          gorm.Expr("COALESCE("+col+", ?)", at.UTC()),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
