package presence

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestCountsClient(t *testing.T, ts *httptest.Server) *CountsClient {
	t.Helper()
	c, err := NewCountsClient("test-token", ts.Client(), discardLogger())
	if err != nil {
		t.Fatalf("NewCountsClient() error = %v", err)
	}
	c.endpoint = ts.URL + "/api/v10/guilds/"
	return c
}

func TestFetchCounts_SendsBotTokenAndParsesCounts(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"123","name":"Titan","approximate_presence_count":9,"approximate_member_count":120}`)
	}))
	defer ts.Close()

	counts, err := newTestCountsClient(t, ts).FetchCounts(context.Background(), "123")
	if err != nil {
		t.Fatalf("FetchCounts() error = %v", err)
	}

	if gotAuth != "Bot test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bot test-token")
	}
	if gotPath != "/api/v10/guilds/123" || gotQuery != "with_counts=true" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}
	if intValue(counts.ApproximatePresenceCount) != 9 || intValue(counts.ApproximateMemberCount) != 120 {
		t.Errorf("counts = %+v", counts)
	}
	if strValue(counts.Name) != "Titan" {
		t.Errorf("Name = %v, want Titan", strValue(counts.Name))
	}
}

func TestNewCountsClient_UsesDiscordV10Endpoint(t *testing.T) {
	c, err := NewCountsClient("test-token", http.DefaultClient, discardLogger())
	if err != nil {
		t.Fatalf("NewCountsClient() error = %v", err)
	}
	if c.endpoint != "https://discord.com/api/v10/guilds/" {
		t.Errorf("endpoint = %q, want %q", c.endpoint, "https://discord.com/api/v10/guilds/")
	}
}

func TestFetchCounts_WrongTypedFieldsBecomeNull(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantName     *string
		wantPresence *int
		wantMembers  *int
	}{
		{
			name:        "presence count as string",
			body:        `{"name":"Titan","approximate_presence_count":"9","approximate_member_count":120}`,
			wantName:    strPtr("Titan"),
			wantMembers: intPtr(120),
		},
		{
			name:         "name as number",
			body:         `{"name":42,"approximate_presence_count":9,"approximate_member_count":null}`,
			wantPresence: intPtr(9),
		},
		{
			name:     "negative and fractional counts",
			body:     `{"name":"Titan","approximate_presence_count":-1,"approximate_member_count":1.5}`,
			wantName: strPtr("Titan"),
		},
		{
			name: "array body",
			body: `[1,2,3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			counts, err := newTestCountsClient(t, ts).FetchCounts(context.Background(), "123")
			if err != nil {
				t.Fatalf("FetchCounts() error = %v", err)
			}
			if strValue(counts.Name) != strValue(tt.wantName) {
				t.Errorf("Name = %v, want %v", strValue(counts.Name), strValue(tt.wantName))
			}
			if intValue(counts.ApproximatePresenceCount) != intValue(tt.wantPresence) {
				t.Errorf("ApproximatePresenceCount = %v, want %v", intValue(counts.ApproximatePresenceCount), intValue(tt.wantPresence))
			}
			if intValue(counts.ApproximateMemberCount) != intValue(tt.wantMembers) {
				t.Errorf("ApproximateMemberCount = %v, want %v", intValue(counts.ApproximateMemberCount), intValue(tt.wantMembers))
			}
		})
	}
}

func TestFetchCounts_MissingCountsStayNull(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"123"}`)
	}))
	defer ts.Close()

	counts, err := newTestCountsClient(t, ts).FetchCounts(context.Background(), "123")
	if err != nil {
		t.Fatalf("FetchCounts() error = %v", err)
	}
	if counts.ApproximatePresenceCount != nil || counts.ApproximateMemberCount != nil || counts.Name != nil {
		t.Errorf("expected nil fields, got %+v", counts)
	}
}

func TestFetchCounts_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"401: Unauthorized","code":0}`},
		{name: "not found", status: http.StatusNotFound, body: `{"message":"Unknown Guild","code":10004}`},
		{name: "bad gateway without retry", status: http.StatusBadGateway, body: ``},
		{name: "malformed body", status: http.StatusOK, body: `{"approximate_member_count":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			if _, err := newTestCountsClient(t, ts).FetchCounts(context.Background(), "123"); err == nil {
				t.Fatal("expected error")
			}
			if calls != 1 {
				t.Errorf("upstream called %d times, want 1", calls)
			}
		})
	}
}
