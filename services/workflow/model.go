package workflow

import (
	"time"

	"outreach-controlplane/pkg/db"

	"gorm.io/datatypes"
)

type Type string

const (
	TypeSearch      Type = "SEARCH"
	TypeInvite      Type = "INVITE"
	TypeSendMessage Type = "SEND_MESSAGE"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSearch, TypeInvite, TypeSendMessage:
		return true
	}
	return false
}

// Workflow is a persisted automation job. Exactly one of SearchURL,
// Keywords/CompanyURLs or TargetWorkflowID selects its leads, see Target.
type Workflow struct {
	ID                 string                      `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CompanyID          string                      `gorm:"column:company_id;type:varchar(64);not null;index" json:"company_id"`
	ProviderID         string                      `gorm:"column:provider_id;type:varchar(32);not null;index" json:"provider_id"`
	ParentWorkflowID   string                      `gorm:"column:parent_workflow_id;type:varchar(32);index" json:"parent_workflow_id,omitempty"`
	Name               string                      `gorm:"column:name;type:varchar(255)" json:"name,omitempty"`
	Type               Type                        `gorm:"column:type;type:varchar(32);not null" json:"type"`
	AgentType          string                      `gorm:"column:agent_type;type:varchar(64)" json:"agent_type,omitempty"`
	SearchURL          string                      `gorm:"column:search_url;type:text" json:"search_url,omitempty"`
	Keywords           string                      `gorm:"column:keywords;type:text" json:"keywords,omitempty"`
	CompanyURLs        datatypes.JSONSlice[string] `gorm:"column:company_urls" json:"company_urls,omitempty"`
	NetworkDistance    datatypes.JSONSlice[int]    `gorm:"column:network_distance" json:"network_distance,omitempty"`
	TargetWorkflowID   string                      `gorm:"column:target_workflow_id;type:varchar(32);index" json:"target_workflow_id,omitempty"`
	ScheduledHours     datatypes.JSONSlice[int]    `gorm:"column:scheduled_hours" json:"scheduled_hours,omitempty"`
	ScheduledDays      datatypes.JSONSlice[int]    `gorm:"column:scheduled_days" json:"scheduled_days,omitempty"`
	ScheduledWeekdays  datatypes.JSONSlice[int]    `gorm:"column:scheduled_weekdays" json:"scheduled_weekdays,omitempty"`
	ScheduledMonths    datatypes.JSONSlice[int]    `gorm:"column:scheduled_months" json:"scheduled_months,omitempty"`
	LimitCount         int                         `gorm:"column:limit_count;not null;default:0" json:"limit_count"`
	RunLimitCount      int                         `gorm:"column:run_limit_count;not null;default:0" json:"run_limit_count"`
	InvitationMessage  string                      `gorm:"column:invitation_message;type:text" json:"invitation_message,omitempty"`
	FirstMessage       string                      `gorm:"column:first_message;type:text" json:"first_message,omitempty"`
	ResendMessage      string                      `gorm:"column:resend_message;type:text" json:"resend_message,omitempty"`
	FollowUpMessage    string                      `gorm:"column:follow_up_message;type:text" json:"follow_up_message,omitempty"`
	FollowUpAfterHours int                         `gorm:"column:follow_up_after_hours;not null;default:0" json:"follow_up_after_hours,omitempty"`
	LeadFilter         string                      `gorm:"column:lead_filter;type:text" json:"lead_filter,omitempty"`
	DeletedAt          db.Tombstone                `gorm:"column:deleted_at;type:timestamptz;not null;default:'-infinity'" json:"-"`
	CreatedAt          time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Workflow) TableName() string { return "workflows" }

// HasSchedule reports whether any schedule dimension is populated.
func (w *Workflow) HasSchedule() bool {
	return len(w.ScheduledHours) > 0 ||
		len(w.ScheduledDays) > 0 ||
		len(w.ScheduledWeekdays) > 0 ||
		len(w.ScheduledMonths) > 0
}

type HistoryStatus string

const (
	HistoryPending HistoryStatus = "PENDING"
	HistorySuccess HistoryStatus = "SUCCESS"
	HistoryFailed  HistoryStatus = "FAILED"
)

// History is the audit row of one execution attempt.
type History struct {
	ID           string        `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	WorkflowID   string        `gorm:"column:workflow_id;type:varchar(32);not null;index" json:"workflow_id"`
	CompanyID    string        `gorm:"column:company_id;type:varchar(64);not null;index" json:"company_id"`
	Cursor       string        `gorm:"column:cursor;type:text" json:"cursor,omitempty"`
	Status       HistoryStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Processed    int           `gorm:"column:processed;not null;default:0" json:"processed"`
	Succeeded    int           `gorm:"column:succeeded;not null;default:0" json:"succeeded"`
	Failed       int           `gorm:"column:failed;not null;default:0" json:"failed"`
	ErrorMessage string        `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ExportKey    string        `gorm:"column:export_key;type:text" json:"export_key,omitempty"`
	CreatedAt    time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	FinishedAt   *time.Time    `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (History) TableName() string { return "workflow_histories" }
