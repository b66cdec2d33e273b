package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientListTransactionsPassesRawBodyThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/connections/conn-1/accounts/pa-1/transactions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("unexpected authorization header: %s", got)
		}
		if since := r.URL.Query().Get("since"); since == "" {
			t.Fatalf("expected since parameter")
		}
		// The provider sometimes lies about content: the client must not care.
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-1", 5*time.Second, 2)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	raw, err := client.ListTransactions(context.Background(), "conn-1", "pa-1", &since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", raw.StatusCode)
	}
	if string(raw.Body) != "<html>oops</html>" {
		t.Fatalf("body was not passed through raw: %q", raw.Body)
	}
	if raw.Header.Get("Content-Type") != "text/html" {
		t.Fatalf("headers were not passed through")
	}
}

func TestClientCreateAuthSessionPostsOwnerRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/auth/sessions" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("unexpected content type: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"redirect_url":"https://auth.example.com/x","session_token":"tok-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-1", 5*time.Second, 2)
	raw, err := client.CreateAuthSession(context.Background(), "user:u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var payload AuthSessionResponse
	outcome := Classify(raw, &payload)
	if !outcome.IsSuccess() {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if payload.SessionToken != "tok-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestClientHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-1", 5*time.Second, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.GetConnectionStatus(ctx, "conn-1"); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
