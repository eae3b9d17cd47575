package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTarget   = errors.New("invalid workflow target")
	ErrInvalidWorkflow = errors.New("invalid workflow")
)

// Target is how an execution finds its leads. Implementations:
// SearchURLTarget, KeywordsTarget, UpstreamTarget and IdentifiersTarget.
type Target interface {
	mode() string
}

type SearchURLTarget struct {
	URL string
}

type KeywordsTarget struct {
	Keywords        string
	CompanyURLs     []string
	NetworkDistance []int
}

// UpstreamTarget selects leads produced or last touched by another workflow.
type UpstreamTarget struct {
	WorkflowID string
}

// IdentifiersTarget is only available to on-demand executions and is never
// persisted.
type IdentifiersTarget struct {
	Identifiers []string
}

func (SearchURLTarget) mode() string   { return "search_url" }
func (KeywordsTarget) mode() string    { return "keywords" }
func (UpstreamTarget) mode() string    { return "target_workflow_id" }
func (IdentifiersTarget) mode() string { return "identifiers" }

// Target returns the single populated target mode. identifiers come from the
// on-demand request, not the stored definition.
func (w *Workflow) Target(identifiers []string) (Target, error) {
	var found []Target

	if u := strings.TrimSpace(w.SearchURL); u != "" {
		found = append(found, SearchURLTarget{URL: u})
	}
	if strings.TrimSpace(w.Keywords) != "" || len(w.CompanyURLs) > 0 {
		found = append(found, KeywordsTarget{
			Keywords:        strings.TrimSpace(w.Keywords),
			CompanyURLs:     w.CompanyURLs,
			NetworkDistance: w.NetworkDistance,
		})
	}
	if w.TargetWorkflowID != "" {
		found = append(found, UpstreamTarget{WorkflowID: w.TargetWorkflowID})
	}
	if ids := compact(identifiers); len(ids) > 0 {
		found = append(found, IdentifiersTarget{Identifiers: ids})
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: one of search_url, keywords, target_workflow_id or identifiers is required", ErrInvalidTarget)
	case 1:
	default:
		modes := make([]string, len(found))
		for i, t := range found {
			modes[i] = t.mode()
		}
		return nil, fmt.Errorf("%w: mutually exclusive modes set: %s", ErrInvalidTarget, strings.Join(modes, ", "))
	}

	t := found[0]
	if up, ok := t.(UpstreamTarget); ok {
		if w.Type == TypeSearch {
			return nil, fmt.Errorf("%w: SEARCH workflows cannot target another workflow", ErrInvalidTarget)
		}
		if w.ID != "" && up.WorkflowID == w.ID {
			return nil, fmt.Errorf("%w: workflow cannot target itself", ErrInvalidTarget)
		}
	}
	return t, nil
}

// Validate checks the fields that do not depend on the target.
func (w *Workflow) Validate() error {
	switch {
	case w.CompanyID == "":
		return fmt.Errorf("%w: company_id is required", ErrInvalidWorkflow)
	case w.ProviderID == "":
		return fmt.Errorf("%w: provider_id is required", ErrInvalidWorkflow)
	case !w.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidWorkflow, w.Type)
	case w.Type == TypeSendMessage && strings.TrimSpace(w.FirstMessage) == "":
		return fmt.Errorf("%w: first_message is required for SEND_MESSAGE", ErrInvalidWorkflow)
	case w.LimitCount < 0 || w.RunLimitCount < 0:
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidWorkflow)
	}
	for _, h := range w.ScheduledHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: scheduled hour %d out of range", ErrInvalidWorkflow, h)
		}
	}
	for _, d := range w.ScheduledWeekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: scheduled weekday %d out of range", ErrInvalidWorkflow, d)
		}
	}
	for _, d := range w.ScheduledDays {
		if d < 1 || d > 31 {
			return fmt.Errorf("%w: scheduled day %d out of range", ErrInvalidWorkflow, d)
		}
	}
	for _, m := range w.ScheduledMonths {
		if m < 1 || m > 12 {
			return fmt.Errorf("%w: scheduled month %d out of range", ErrInvalidWorkflow, m)
		}
	}
	return nil
}

func compact(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
