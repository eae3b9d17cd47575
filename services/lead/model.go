package lead

import (
	"encoding/json"
	"time"

	"outreach-controlplane/pkg/db"
	"outreach-controlplane/services/unipile"

	"gorm.io/datatypes"
)

type Status string

// Lifecycle order. Invitation outcomes share a stage; a failed invitation can
// still be upgraded by a later successful one, never the other way around.
const (
	StatusSearched            Status = "SEARCHED"
	StatusInQueue             Status = "IN_QUEUE"
	StatusInvitedFailed       Status = "INVITED_FAILED"
	StatusInvited             Status = "INVITED"
	StatusAlreadyInvited      Status = "ALREADY_INVITED"
	StatusFollowUpSentInQueue Status = "FOLLOW_UP_SENT_IN_QUEUE"
	StatusFollowUpSent        Status = "FOLLOW_UP_SENT"
)

var statusRank = map[Status]int{
	StatusSearched:            10,
	StatusInQueue:             20,
	StatusInvitedFailed:       30,
	StatusInvited:             31,
	StatusAlreadyInvited:      32,
	StatusFollowUpSentInQueue: 40,
	StatusFollowUpSent:        50,
}

func (s Status) Rank() int {
	return statusRank[s]
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Queued reports whether the status marks a lead claimed by a scheduled workflow.
func (s Status) Queued() bool {
	return s == StatusInQueue || s == StatusFollowUpSentInQueue
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s Status) CanAdvanceTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	return next.Rank() >= s.Rank()
}

type Lead struct {
	ID                    string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CompanyID             string         `gorm:"column:company_id;type:varchar(64);not null;uniqueIndex:idx_leads_company_private,priority:1;uniqueIndex:idx_leads_provisional,priority:1,where:private_identifier IS NULL" json:"company_id"`
	ProviderID            string         `gorm:"column:provider_id;type:varchar(32);index" json:"provider_id"`
	WorkflowID            string         `gorm:"column:workflow_id;type:varchar(32);index;uniqueIndex:idx_leads_provisional,priority:3" json:"workflow_id"`
	LastWorkflowID        string         `gorm:"column:last_workflow_id;type:varchar(32);index" json:"last_workflow_id,omitempty"`
	QueuedByWorkflowID    string         `gorm:"column:queued_by_workflow_id;type:varchar(32);index" json:"queued_by_workflow_id,omitempty"`
	PrivateIdentifier     *string        `gorm:"column:private_identifier;type:varchar(128);uniqueIndex:idx_leads_company_private,priority:2" json:"private_identifier,omitempty"`
	PublicIdentifier      string         `gorm:"column:public_identifier;type:varchar(255);uniqueIndex:idx_leads_provisional,priority:2" json:"public_identifier"`
	FirstName             string         `gorm:"column:first_name;type:varchar(255)" json:"first_name,omitempty"`
	LastName              string         `gorm:"column:last_name;type:varchar(255)" json:"last_name,omitempty"`
	FullName              string         `gorm:"column:full_name;type:varchar(512)" json:"full_name,omitempty"`
	Headline              string         `gorm:"column:headline;type:text" json:"headline,omitempty"`
	Location              string         `gorm:"column:location;type:varchar(255)" json:"location,omitempty"`
	Company               string         `gorm:"column:company;type:varchar(255)" json:"company,omitempty"`
	ProfileURL            string         `gorm:"column:profile_url;type:text" json:"profile_url,omitempty"`
	ConnectionsCount      int            `gorm:"column:connections_count" json:"connections_count,omitempty"`
	NetworkDistance       string         `gorm:"column:network_distance;type:varchar(32)" json:"network_distance,omitempty"`
	Profile               datatypes.JSON `gorm:"column:profile" json:"profile,omitempty"`
	LatestStatus          Status         `gorm:"column:latest_status;type:varchar(32);not null;index" json:"latest_status"`
	StatusRank            int            `gorm:"column:status_rank;not null;default:0" json:"-"`
	InvitationID          string         `gorm:"column:invitation_id;type:varchar(128)" json:"invitation_id,omitempty"`
	ChatID                string         `gorm:"column:chat_id;type:varchar(128)" json:"chat_id,omitempty"`
	LastError             string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	SearchedAt            *time.Time     `gorm:"column:searched_at" json:"searched_at,omitempty"`
	QueuedAt              *time.Time     `gorm:"column:queued_at" json:"queued_at,omitempty"`
	InvitationSentAt      *time.Time     `gorm:"column:invitation_sent_at" json:"invitation_sent_at,omitempty"`
	InvitationRepliedAt   *time.Time     `gorm:"column:invitation_replied_at" json:"invitation_replied_at,omitempty"`
	FirstMessageSentAt    *time.Time     `gorm:"column:first_message_sent_at" json:"first_message_sent_at,omitempty"`
	FirstMessageRepliedAt *time.Time     `gorm:"column:first_message_replied_at" json:"first_message_replied_at,omitempty"`
	DeletedAt             db.Tombstone   `gorm:"column:deleted_at;type:timestamptz;not null;default:'-infinity'" json:"-"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

func (l *Lead) Provisional() bool {
	return l.PrivateIdentifier == nil || *l.PrivateIdentifier == ""
}

func (l *Lead) PrivateID() string {
	if l.PrivateIdentifier == nil {
		return ""
	}
	return *l.PrivateIdentifier
}

func (l *Lead) SetPrivateID(id string) {
	if id == "" {
		l.PrivateIdentifier = nil
		return
	}
	l.PrivateIdentifier = &id
}

// FromProfile builds a lead snapshot from an external profile.
func FromProfile(p unipile.Profile) *Lead {
	l := &Lead{
		PublicIdentifier: p.PublicIdentifier,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		FullName:         p.FullName(),
		Headline:         p.Headline,
		Location:         p.Location,
		Company:          p.Company,
		ProfileURL:       p.ProfileURL,
		ConnectionsCount: p.ConnectionsCount,
		NetworkDistance:  p.NetworkDistance,
	}
	l.SetPrivateID(p.ProviderID)
	if raw, err := json.Marshal(p); err == nil {
		l.Profile = datatypes.JSON(raw)
	}
	return l
}

// ApplyProfile fills profile fields from p without clearing known values.
func (l *Lead) ApplyProfile(p unipile.Profile) {
	fresh := FromProfile(p)
	mergeInto(l, fresh)
	if l.Provisional() && !fresh.Provisional() {
		l.PrivateIdentifier = fresh.PrivateIdentifier
	}
}

// Attributes is the variable set exposed to lead filter expressions.
func (l *Lead) Attributes() map[string]any {
	return map[string]any{
		"first_name":        l.FirstName,
		"last_name":         l.LastName,
		"full_name":         l.FullName,
		"headline":          l.Headline,
		"location":          l.Location,
		"company":           l.Company,
		"connections_count": int64(l.ConnectionsCount),
		"network_distance":  l.NetworkDistance,
		"public_identifier": l.PublicIdentifier,
	}
}

// Stamp sets the stage timestamp that belongs to status, if any.
func (l *Lead) Stamp(status Status, at time.Time) {
	switch status {
	case StatusSearched:
		l.SearchedAt = &at
	case StatusInQueue, StatusFollowUpSentInQueue:
		l.QueuedAt = &at
	case StatusInvited:
		l.InvitationSentAt = &at
	case StatusFollowUpSent:
		l.FirstMessageSentAt = &at
	}
}

// mergeInto copies non-empty profile fields of src onto dst.
func mergeInto(dst, src *Lead) {
	setStr := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	setStr(&dst.PublicIdentifier, src.PublicIdentifier)
	setStr(&dst.FirstName, src.FirstName)
	setStr(&dst.LastName, src.LastName)
	setStr(&dst.FullName, src.FullName)
	setStr(&dst.Headline, src.Headline)
	setStr(&dst.Location, src.Location)
	setStr(&dst.Company, src.Company)
	setStr(&dst.ProfileURL, src.ProfileURL)
	setStr(&dst.NetworkDistance, src.NetworkDistance)
	setStr(&dst.ProviderID, src.ProviderID)
	setStr(&dst.InvitationID, src.InvitationID)
	setStr(&dst.ChatID, src.ChatID)
	if src.ConnectionsCount > 0 {
		dst.ConnectionsCount = src.ConnectionsCount
	}
	if len(src.Profile) > 0 && string(src.Profile) != "null" {
		dst.Profile = src.Profile
	}
}
