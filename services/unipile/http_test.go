package unipile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "secret", 5*time.Second)
}

func TestSearchProfiles(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/linkedin/search", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		require.Equal(t, "acc-1", r.URL.Query().Get("account_id"))
		require.Equal(t, "c1", r.URL.Query().Get("cursor"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))

		var body SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "CTO", body.Keywords)
		require.Equal(t, "classic", body.API)
		require.Equal(t, "people", body.Category)
		require.Equal(t, []string{"1337"}, body.CompanyIDs)

		_, _ = w.Write([]byte(`{"items":[{"id":"ACo1","public_identifier":"jane","name":"Jane Doe","headline":"CTO"}],"cursor":"c2"}`))
	})

	page, err := client.SearchProfiles(context.Background(), "acc-1", SearchRequest{Keywords: "CTO", CompanyIDs: []string{"1337"}}, "c1", 10)
	require.NoError(t, err)
	require.Equal(t, "c2", page.Cursor)
	require.Len(t, page.Items, 1)
	require.Equal(t, "ACo1", page.Items[0].ProviderID)
	require.Equal(t, "Jane", page.Items[0].FirstName)
	require.Equal(t, "Doe", page.Items[0].LastName)
	require.Equal(t, "Jane Doe", page.Items[0].FullName())
}

func TestSendInvitation_AlreadyInvited(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/users/invite", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"status":422,"type":"errors/already_invited_recently","title":"Already invited"}`))
	})

	_, err := client.SendInvitation(context.Background(), "acc-1", "ACo1", "hi")
	require.Error(t, err)
	require.True(t, IsAlreadyInvited(err))
	require.False(t, IsRateLimited(err))
}

func TestSendInvitation_OK(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ACo1", body["provider_id"])
		require.Equal(t, "hello", body["message"])
		_, _ = w.Write([]byte(`{"object":"UserInvitationSent","invitation_id":"inv-9"}`))
	})

	inv, err := client.SendInvitation(context.Background(), "acc-1", "ACo1", "hello")
	require.NoError(t, err)
	require.Equal(t, "inv-9", inv.InvitationID)
}

func TestStartNewChatAndSendMessage(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		switch r.URL.Path {
		case "/api/v1/chats":
			require.Equal(t, "acc-1", r.FormValue("account_id"))
			require.Equal(t, []string{"ACo1"}, r.MultipartForm.Value["attendees_ids"])
			require.Equal(t, "hi Jane", r.FormValue("text"))
			_, _ = w.Write([]byte(`{"chat_id":"chat-1","message_id":"m-1"}`))
		case "/api/v1/chats/chat-1/messages":
			require.Equal(t, "again", r.FormValue("text"))
			_, _ = w.Write([]byte(`{"message_id":"m-2"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	chat, err := client.StartNewChat(context.Background(), "acc-1", []string{"ACo1"}, "hi Jane")
	require.NoError(t, err)
	require.Equal(t, "chat-1", chat.ChatID)

	msg, err := client.SendMessage(context.Background(), "chat-1", "again")
	require.NoError(t, err)
	require.Equal(t, "m-2", msg.MessageID)
}

func TestGetProfile_NotFound(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/users/ghost", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`not here`))
	})

	_, err := client.GetProfile(context.Background(), "acc-1", "ghost")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
	require.Contains(t, err.Error(), "not here")
}

func TestLookupCompany(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/linkedin/company/acme", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"1337","name":"Acme"}`))
	})

	id, err := client.LookupCompany(context.Background(), "acc-1", "https://www.linkedin.com/company/acme/")
	require.NoError(t, err)
	require.Equal(t, "1337", id)
}

func TestReactToPost(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/posts/reaction", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "like", body["reaction_type"])
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, client.ReactToPost(context.Background(), "acc-1", "post-1", "like"))
}

func TestCompanySlug(t *testing.T) {
	cases := map[string]string{
		"https://www.linkedin.com/company/acme/":    "acme",
		"linkedin.com/company/acme-inc/about":       "acme-inc",
		"acme":                                      "acme",
		"https://www.linkedin.com/school/stanford/": "stanford",
	}
	for in, want := range cases {
		got, err := CompanySlug(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	_, err := CompanySlug("https://www.linkedin.com/in/jane")
	require.Error(t, err)
	_, err = CompanySlug("  ")
	require.Error(t, err)
}
