package unipile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"outreach-controlplane/pkg/metrics"
)

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient builds a Client against baseURL, e.g. https://api1.unipile.com:13111.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type searchItem struct {
	ID               string `json:"id"`
	PublicIdentifier string `json:"public_identifier"`
	Name             string `json:"name"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Headline         string `json:"headline"`
	Location         string `json:"location"`
	ProfileURL       string `json:"profile_url"`
	NetworkDistance  string `json:"network_distance"`
}

type searchResponse struct {
	Items  []searchItem `json:"items"`
	Cursor string       `json:"cursor"`
}

func (c *httpClient) SearchProfiles(ctx context.Context, accountID string, req SearchRequest, cursor string, limit int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("account_id", accountID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if req.URL == "" {
		if req.API == "" {
			req.API = "classic"
		}
		if req.Category == "" {
			req.Category = "people"
		}
	}

	var resp searchResponse
	if err := c.doJSON(ctx, "search_profiles", http.MethodPost, "/api/v1/linkedin/search", q, req, &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{Cursor: resp.Cursor, Items: make([]Profile, 0, len(resp.Items))}
	for _, it := range resp.Items {
		p := Profile{
			ProviderID:       it.ID,
			PublicIdentifier: it.PublicIdentifier,
			FirstName:        it.FirstName,
			LastName:         it.LastName,
			Headline:         it.Headline,
			Location:         it.Location,
			ProfileURL:       it.ProfileURL,
			NetworkDistance:  it.NetworkDistance,
		}
		if p.FirstName == "" && p.LastName == "" && it.Name != "" {
			p.FirstName, p.LastName, _ = strings.Cut(it.Name, " ")
		}
		page.Items = append(page.Items, p)
	}
	return page, nil
}

func (c *httpClient) GetProfile(ctx context.Context, accountID, identifier string) (*Profile, error) {
	q := url.Values{}
	q.Set("account_id", accountID)
	q.Set("linkedin_sections", "*")

	var p Profile
	if err := c.doJSON(ctx, "get_profile", http.MethodGet, "/api/v1/users/"+url.PathEscape(identifier), q, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *httpClient) GetOwnProfile(ctx context.Context, accountID string) (*Profile, error) {
	q := url.Values{}
	q.Set("account_id", accountID)

	var p Profile
	if err := c.doJSON(ctx, "get_own_profile", http.MethodGet, "/api/v1/users/me", q, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LookupCompany resolves a company page URL (or bare slug) to its internal id.
func (c *httpClient) LookupCompany(ctx context.Context, accountID, companyURL string) (string, error) {
	slug, err := CompanySlug(companyURL)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("account_id", accountID)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "lookup_company", http.MethodGet, "/api/v1/linkedin/company/"+url.PathEscape(slug), q, nil, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("unipile: company %q has no id", slug)
	}
	return resp.ID, nil
}

func (c *httpClient) SendInvitation(ctx context.Context, accountID, providerID, message string) (*Invitation, error) {
	body := map[string]string{
		"account_id":  accountID,
		"provider_id": providerID,
	}
	if message != "" {
		body["message"] = message
	}

	var inv Invitation
	if err := c.doJSON(ctx, "send_invitation", http.MethodPost, "/api/v1/users/invite", nil, body, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *httpClient) StartNewChat(ctx context.Context, accountID string, attendeeIDs []string, text string) (*Chat, error) {
	fields := [][2]string{{"account_id", accountID}, {"text", text}}
	for _, id := range attendeeIDs {
		fields = append(fields, [2]string{"attendees_ids", id})
	}

	var chat Chat
	if err := c.doMultipart(ctx, "start_new_chat", "/api/v1/chats", fields, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *httpClient) SendMessage(ctx context.Context, chatID, text string) (*Message, error) {
	var msg Message
	if err := c.doMultipart(ctx, "send_message", "/api/v1/chats/"+url.PathEscape(chatID)+"/messages", [][2]string{{"text", text}}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *httpClient) ReactToPost(ctx context.Context, accountID, postID, reaction string) error {
	body := map[string]string{
		"account_id":    accountID,
		"post_id":       postID,
		"reaction_type": reaction,
	}
	return c.doJSON(ctx, "react_to_post", http.MethodPost, "/api/v1/posts/reaction", nil, body, nil)
}

func (c *httpClient) doJSON(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("unipile: encode %s: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(op, req, out)
}

func (c *httpClient) doMultipart(ctx context.Context, op, path string, fields [][2]string, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(op, req, out)
}

func (c *httpClient) do(op string, req *http.Request, out any) error {
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ExternalRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("unipile: %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.ExternalRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("unipile: read %s: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		if len(raw) == 0 || json.Unmarshal(raw, apiErr) != nil {
			apiErr.Detail = strings.TrimSpace(string(raw))
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unipile: decode %s: %w", op, err)
	}
	return nil
}

// CompanySlug extracts the company identifier from a company page URL.
func CompanySlug(companyURL string) (string, error) {
	raw := strings.TrimSpace(companyURL)
	if raw == "" {
		return "", fmt.Errorf("unipile: empty company url")
	}
	if !strings.Contains(raw, "/") {
		return raw, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unipile: invalid company url %q: %w", companyURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "company" || parts[i] == "school" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("unipile: %q is not a company url", companyURL)
}
