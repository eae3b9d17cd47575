package unipile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Client is the capability surface of the social automation API used by
// providers, the scheduler and the executor.
type Client interface {
	SearchProfiles(ctx context.Context, accountID string, req SearchRequest, cursor string, limit int) (*SearchPage, error)
	GetProfile(ctx context.Context, accountID, identifier string) (*Profile, error)
	GetOwnProfile(ctx context.Context, accountID string) (*Profile, error)
	LookupCompany(ctx context.Context, accountID, companyURL string) (string, error)
	SendInvitation(ctx context.Context, accountID, providerID, message string) (*Invitation, error)
	StartNewChat(ctx context.Context, accountID string, attendeeIDs []string, text string) (*Chat, error)
	SendMessage(ctx context.Context, chatID, text string) (*Message, error)
	ReactToPost(ctx context.Context, accountID, postID, reaction string) error
}

// SearchRequest carries either a prebuilt search URL or structured filters.
type SearchRequest struct {
	URL             string   `json:"url,omitempty"`
	API             string   `json:"api,omitempty"`
	Category        string   `json:"category,omitempty"`
	Keywords        string   `json:"keywords,omitempty"`
	CompanyIDs      []string `json:"company,omitempty"`
	NetworkDistance []int    `json:"network_distance,omitempty"`
}

type SearchPage struct {
	Items  []Profile
	Cursor string
}

type Profile struct {
	ProviderID       string `json:"provider_id"`
	PublicIdentifier string `json:"public_identifier"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Headline         string `json:"headline"`
	Location         string `json:"location"`
	Company          string `json:"company,omitempty"`
	ProfileURL       string `json:"profile_url,omitempty"`
	ConnectionsCount int    `json:"connections_count"`
	NetworkDistance  string `json:"network_distance,omitempty"`
}

func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

type Invitation struct {
	InvitationID string `json:"invitation_id"`
}

type Chat struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

type Message struct {
	MessageID string `json:"message_id"`
}

const (
	ErrorTypeAlreadyInvited = "errors/already_invited_recently"
	ErrorTypeCannotResend   = "errors/cannot_resend_yet"
	ErrorTypeNotFound       = "errors/resource_not_found"
	ErrorTypeRateLimited    = "errors/too_many_requests"
)

// APIError is the problem document returned for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"status"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unipile: %d %s: %s", e.StatusCode, e.Type, e.Detail)
	}
	return fmt.Sprintf("unipile: %d %s", e.StatusCode, e.Type)
}

// IsAlreadyInvited reports whether the invitation was already sent recently.
// This is an expected outcome, not a failure.
func IsAlreadyInvited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Type == ErrorTypeAlreadyInvited || apiErr.Type == ErrorTypeCannotResend)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.Type == ErrorTypeNotFound)
}

func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Type == ErrorTypeRateLimited)
}
