package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookNotifierPostsJSON(t *testing.T) {
	got := make(chan Message, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if r.Header.Get("X-Webhook-Secret") != "s3cret" {
			t.Errorf("missing custom header")
		}
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	n.Header = http.Header{"X-Webhook-Secret": []string{"s3cret"}}

	want := Message{Kind: KindEmailVerification, UserID: 7, To: "a@x.com", Secret: "012345", ExpiresAt: time.Unix(1700000000, 0).UTC()}
	if err := n.Notify(context.Background(), want); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	msg := <-got
	if msg.Secret != want.Secret || msg.To != want.To || !msg.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestWebhookNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL, time.Second).Notify(context.Background(), Message{}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if err := (&WebhookNotifier{}).Notify(context.Background(), Message{}); err == nil {
		t.Fatal("expected error without url")
	}
}
