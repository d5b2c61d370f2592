package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
)

func TestResolveRole_Email(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/roles/account_manager/members" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"members":[
			{"email":"am1@example.com","phone":"+15550100001","active":true},
			{"email":"am2@example.com","active":true},
			{"email":"former@example.com","active":false}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", 5*time.Second, time.Minute)
	got, err := c.ResolveRole(context.Background(), "account_manager", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("ResolveRole: %v", err)
	}
	if len(got) != 2 || got[0] != "am1@example.com" || got[1] != "am2@example.com" {
		t.Errorf("addresses = %v", got)
	}
}

func TestResolveRole_SMSChannelPicksPhones(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"members":[{"email":"am@example.com","phone":"+15550100001","active":true}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, time.Minute)
	got, err := c.ResolveRole(context.Background(), "account_manager", domain.ChannelSMS)
	if err != nil {
		t.Fatalf("ResolveRole: %v", err)
	}
	if len(got) != 1 || got[0] != "+15550100001" {
		t.Errorf("addresses = %v", got)
	}
}

func TestResolveRole_UnknownRoleIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, time.Minute)
	got, err := c.ResolveRole(context.Background(), "no_such_role", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("ResolveRole: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("addresses = %v, want empty", got)
	}
}

func TestResolveRole_CachesWithinTTL(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"members":[{"email":"am@example.com","active":true}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.ResolveRole(ctx, "account_manager", domain.ChannelEmail); err != nil {
			t.Fatalf("ResolveRole: %v", err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("directory called %d times, want 1", n)
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"admin": {"ops@example.com"}}
	got, err := r.ResolveRole(context.Background(), "admin", domain.ChannelEmail)
	if err != nil || len(got) != 1 || got[0] != "ops@example.com" {
		t.Errorf("got %v, %v", got, err)
	}
}
