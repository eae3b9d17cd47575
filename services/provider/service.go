package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach-controlplane/pkg/db"
	"outreach-controlplane/services/unipile"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrInvalidCallback   = errors.New("invalid provider callback")
	ErrClientUnavailable = errors.New("automation client not configured")
)

// Callback is the hosted-auth notification. Name carries "<company_id>:<user_id>"
// as passed when the auth link was generated.
type Callback struct {
	Status    Status `json:"status" binding:"required"`
	AccountID string `json:"account_id" binding:"required"`
	Name      string `json:"name"`
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	unipile unipile.Client
}

type Params struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Unipile unipile.Client  `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{db: p.DB, node: p.Node, unipile: p.Unipile}
}

// Active returns the non-deleted, connected provider of a company.
func (s *Service) Active(ctx context.Context, companyID, providerID string) (*Provider, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var p Provider
	err := s.db.WithContext(ctx).
		Scopes(db.NotDeleted).
		Where("company_id = ? AND id = ?", companyID, providerID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.Usable() {
		return nil, fmt.Errorf("%w: provider %s is %s", ErrProviderNotFound, p.ID, p.Status)
	}
	return &p, nil
}

// ResolveAccount maps an external account id to its company and own profile id.
func (s *Service) ResolveAccount(ctx context.Context, accountID string) (string, string, error) {
	var p Provider
	err := s.db.WithContext(ctx).
		Scopes(db.NotDeleted).
		Where("type = ? AND account_id = ?", TypeLinkedIn, accountID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", ErrProviderNotFound
	}
	if err != nil {
		return "", "", err
	}
	return p.CompanyID, p.PrivateIdentifier, nil
}

func (s *Service) List(ctx context.Context, companyID string) ([]Provider, error) {
	var out []Provider
	err := s.db.WithContext(ctx).
		Scopes(db.NotDeleted).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// HandleCallback creates or refreshes the provider for the account. A
// previously removed account is revived.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (*Provider, error) {
	if !cb.Status.Valid() || cb.AccountID == "" {
		return nil, fmt.Errorf("%w: status %q account %q", ErrInvalidCallback, cb.Status, cb.AccountID)
	}
	companyID, userID, _ := strings.Cut(cb.Name, ":")

	log := zap.L().With(zap.String("account_id", cb.AccountID), zap.String("status", string(cb.Status)))

	var p Provider
	err := s.db.WithContext(ctx).
		Where("type = ? AND account_id = ?", TypeLinkedIn, cb.AccountID).
		First(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if companyID == "" {
			return nil, fmt.Errorf("%w: name must carry company id", ErrInvalidCallback)
		}
		p = Provider{
			ID:        s.node.Generate().String(),
			UserID:    userID,
			CompanyID: companyID,
			AccountID: cb.AccountID,
			Type:      TypeLinkedIn,
			Status:    cb.Status,
		}
		s.fillIdentifiers(ctx, &p)
		if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, err
		}
		log.Info("provider created", zap.String("provider_id", p.ID))
		return &p, nil
	case err != nil:
		return nil, err
	}

	p.Status = cb.Status
	if p.DeletedAt.IsDeleted() {
		p.DeletedAt = db.Tombstone{}
		if cb.Status == StatusReconnected {
			p.Status = StatusCreationSuccess
		}
	}
	if companyID != "" && companyID != p.CompanyID {
		log.Warn("callback company differs from stored provider, keeping stored company", zap.String("callback_company_id", companyID))
	}
	if userID != "" {
		p.UserID = userID
	}
	if cb.Status != StatusDisconnected {
		s.fillIdentifiers(ctx, &p)
	}

	err = s.db.WithContext(ctx).Model(&Provider{}).Where("id = ?", p.ID).Updates(map[string]any{
		"status":             p.Status,
		"user_id":            p.UserID,
		"public_identifier":  p.PublicIdentifier,
		"private_identifier": p.PrivateIdentifier,
		"deleted_at":         p.DeletedAt,
		"updated_at":         time.Now().UTC(),
	}).Error
	if err != nil {
		return nil, err
	}
	log.Info("provider updated", zap.String("provider_id", p.ID))
	return &p, nil
}

func (s *Service) fillIdentifiers(ctx context.Context, p *Provider) {
	if s.unipile == nil {
		return
	}
	me, err := s.unipile.GetOwnProfile(ctx, p.AccountID)
	if err != nil {
		zap.L().Warn("failed to fetch own profile for provider", zap.String("account_id", p.AccountID), zap.Error(err))
		return
	}
	if me.PublicIdentifier != "" {
		p.PublicIdentifier = me.PublicIdentifier
	}
	if me.ProviderID != "" {
		p.PrivateIdentifier = me.ProviderID
	}
}

// Remove soft-deletes the provider. Rows are never physically removed.
func (s *Service) Remove(ctx context.Context, companyID, providerID string) error {
	res := s.db.WithContext(ctx).Model(&Provider{}).
		Scopes(db.NotDeleted).
		Where("company_id = ? AND id = ?", companyID, providerID).
		Updates(map[string]any{
			"deleted_at": db.DeletedAt(time.Now()),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// React adds a reaction to a post on behalf of the company's provider.
func (s *Service) React(ctx context.Context, companyID, providerID, postID, reaction string) error {
	if s.unipile == nil {
		return ErrClientUnavailable
	}
	p, err := s.Active(ctx, companyID, providerID)
	if err != nil {
		return err
	}
	if err := s.unipile.ReactToPost(ctx, p.AccountID, postID, reaction); err != nil {
		return fmt.Errorf("react to post %s: %w", postID, err)
	}
	zap.L().Info("post reaction sent", zap.String("provider_id", p.ID), zap.String("post_id", postID), zap.String("reaction", reaction))
	return nil
}
