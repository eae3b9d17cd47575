package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"outreach-controlplane/pkg/errutil"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateExecuteBody, ExecuteBody{})
	return v
}

// ExecuteBody is the on-demand execution request. Exactly one of search_url,
// keywords/company_urls, target_workflow_id or identifiers must be set.
type ExecuteBody struct {
	ProviderID         string   `json:"provider_id" validate:"required,max=32"`
	Name               string   `json:"name" validate:"max=255"`
	Type               Type     `json:"type" validate:"required,oneof=SEARCH INVITE SEND_MESSAGE"`
	AgentType          string   `json:"agent_type" validate:"max=64"`
	SearchURL          string   `json:"search_url" validate:"omitempty,url"`
	Keywords           string   `json:"keywords" validate:"max=512"`
	CompanyURLs        []string `json:"company_urls" validate:"omitempty,max=20,dive,url"`
	NetworkDistance    []int    `json:"network_distance" validate:"omitempty,dive,min=1,max=3"`
	TargetWorkflowID   string   `json:"target_workflow_id" validate:"max=32"`
	Identifiers        []string `json:"identifiers" validate:"omitempty,max=100,dive,required"`
	ScheduledHours     []int    `json:"scheduled_hours" validate:"omitempty,dive,min=0,max=23"`
	ScheduledDays      []int    `json:"scheduled_days" validate:"omitempty,dive,min=1,max=31"`
	ScheduledWeekdays  []int    `json:"scheduled_weekdays" validate:"omitempty,dive,min=0,max=6"`
	ScheduledMonths    []int    `json:"scheduled_months" validate:"omitempty,dive,min=1,max=12"`
	LimitCount         int      `json:"limit_count" validate:"gte=0,lte=1000"`
	RunLimitCount      int      `json:"run_limit_count" validate:"gte=0"`
	InvitationMessage  string   `json:"invitation_message" validate:"max=300"`
	FirstMessage       string   `json:"first_message" validate:"max=8000"`
	ResendMessage      string   `json:"resend_message" validate:"max=8000"`
	FollowUpMessage    string   `json:"follow_up_message" validate:"max=8000"`
	FollowUpAfterHours int      `json:"follow_up_after_hours" validate:"gte=0,lte=720"`
	LeadFilter         string   `json:"lead_filter" validate:"max=1024"`
}

func validateExecuteBody(sl validator.StructLevel) {
	b := sl.Current().Interface().(ExecuteBody)

	modes := 0
	for _, set := range []bool{
		strings.TrimSpace(b.SearchURL) != "",
		strings.TrimSpace(b.Keywords) != "" || len(b.CompanyURLs) > 0,
		b.TargetWorkflowID != "",
		len(b.Identifiers) > 0,
	} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		sl.ReportError(b.SearchURL, "target", "Target", "exactly_one_target", "")
	}
	if b.Type == TypeSendMessage && strings.TrimSpace(b.FirstMessage) == "" {
		sl.ReportError(b.FirstMessage, "first_message", "FirstMessage", "required_for_send_message", "")
	}
	if b.Type == TypeSearch && b.TargetWorkflowID != "" {
		sl.ReportError(b.TargetWorkflowID, "target_workflow_id", "TargetWorkflowID", "not_allowed_for_search", "")
	}
	if len(b.Identifiers) > 0 && (len(b.ScheduledHours)+len(b.ScheduledDays)+len(b.ScheduledWeekdays)+len(b.ScheduledMonths)) > 0 {
		sl.ReportError(b.Identifiers, "identifiers", "Identifiers", "not_schedulable", "")
	}
}

// Validate returns a validation error carrying one detail per failed field.
func (b ExecuteBody) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errutil.BadRequest("invalid request", err)
	}
	details := make([]errutil.Detail, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		details = append(details, errutil.Detail{Field: fe.Field(), Message: msg})
	}
	return errutil.ValidationFailed("invalid workflow request", nil, errutil.WithDetails(details...))
}

func (b ExecuteBody) Workflow(companyID string) *Workflow {
	return &Workflow{
		CompanyID:          companyID,
		ProviderID:         b.ProviderID,
		Name:               b.Name,
		Type:               b.Type,
		AgentType:          b.AgentType,
		SearchURL:          strings.TrimSpace(b.SearchURL),
		Keywords:           strings.TrimSpace(b.Keywords),
		CompanyURLs:        b.CompanyURLs,
		NetworkDistance:    b.NetworkDistance,
		TargetWorkflowID:   b.TargetWorkflowID,
		ScheduledHours:     b.ScheduledHours,
		ScheduledDays:      b.ScheduledDays,
		ScheduledWeekdays:  b.ScheduledWeekdays,
		ScheduledMonths:    b.ScheduledMonths,
		LimitCount:         b.LimitCount,
		RunLimitCount:      b.RunLimitCount,
		InvitationMessage:  b.InvitationMessage,
		FirstMessage:       b.FirstMessage,
		ResendMessage:      b.ResendMessage,
		FollowUpMessage:    b.FollowUpMessage,
		FollowUpAfterHours: b.FollowUpAfterHours,
		LeadFilter:         b.LeadFilter,
	}
}
