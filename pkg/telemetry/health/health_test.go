package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/storage"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, StatusReady},
		{"all ok", map[string]CheckFunc{
			"a": func(context.Context) error { return nil },
			"b": func(context.Context) error { return nil },
		}, StatusReady},
		{"one failing", map[string]CheckFunc{
			"a": func(context.Context) error { return nil },
			"b": func(context.Context) error { return errors.New("down") },
		}, StatusDegraded},
		{"timeout", map[string]CheckFunc{
			"slow": func(ctx context.Context) error {
				<-ctx.Done()
				time.Sleep(10 * time.Millisecond)
				return nil
			},
		}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(20 * time.Millisecond)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}

			got := c.CheckReadiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q (checks %v)", got.Status, tt.want, got.Checks)
			}
			if len(got.Checks) != len(tt.checks) {
				t.Errorf("len(Checks) = %d, want %d", len(got.Checks), len(tt.checks))
			}
		})
	}
}

func TestPolicyCheck(t *testing.T) {
	var doc *card.Document
	check := PolicyCheck(func() *card.Document { return doc })

	if err := check(context.Background()); err == nil {
		t.Error("expected error with no policy loaded")
	}
	doc = &card.Document{Name: "eu-geo"}
	if err := check(context.Background()); err != nil {
		t.Errorf("check() error = %v", err)
	}
}

func TestStorageCheck(t *testing.T) {
	if err := StorageCheck(nil)(context.Background()); err == nil {
		t.Error("expected error for nil storage")
	}
	if err := StorageCheck(storage.NewMemoryStorage())(context.Background()); err != nil {
		t.Errorf("memory storage check error = %v", err)
	}

	closed := failingStorage{}
	if err := StorageCheck(closed)(context.Background()); err == nil {
		t.Error("expected error from failing storage")
	}
}

type failingStorage struct{ evidence.Storage }

func (failingStorage) Count(context.Context, *evidence.Query) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("archive", func(context.Context) error { return errors.New("database is locked") })

	tests := []struct {
		name    string
		handler http.Handler
		method  string
		code    int
		status  string
	}{
		{"liveness", c.LivenessHandler(), http.MethodGet, http.StatusOK, StatusOK},
		{"readiness degraded", c.ReadinessHandler(), http.MethodGet, http.StatusServiceUnavailable, StatusDegraded},
		{"liveness post", c.LivenessHandler(), http.MethodPost, http.StatusMethodNotAllowed, ""},
		{"readiness head", c.ReadinessHandler(), http.MethodHead, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, httptest.NewRequest(tt.method, "/", nil))

			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			if tt.status == "" {
				return
			}
			var body HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.status {
				t.Errorf("status = %q, want %q", body.Status, tt.status)
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.0", "abc123", "2025-01-01").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Version != "1.2.0" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}
