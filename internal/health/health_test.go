package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// get serves path through a mux with h registered and decodes the answer.
func get(t *testing.T, h *Handler, ctx context.Context, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("%s Content-Type = %q", path, ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("%s: decode JSON: %v", path, err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "journal", Check: failWith("read-only file system")})
	code, body := get(t, h, context.Background(), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok even with failing checks", code, body.Status)
	}
	if body.Checks != nil {
		t.Errorf("healthz checks = %v, want none", body.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "journal", Check: pass}, {Name: "vectors", Check: pass}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"journal": "ok", "vectors": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "journal", Check: failWith("permission denied")},
				{Name: "vectors", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"journal": "fail: permission denied", "vectors": "ok"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "journal", Check: failWith("timeout")},
				{Name: "vectors", Check: failWith("no such table")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"journal": "fail: timeout", "vectors": "fail: no such table"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := get(t, New(tt.checkers...), context.Background(), "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("check %s = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "vectors", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := get(t, h, ctx, "/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

// ── store-backed checkers ────────────────────────────────────────────────────

type fakeStore struct {
	err   error
	count int
}

func (f *fakeStore) Writable(context.Context) error { return f.err }

func (f *fakeStore) Count(context.Context) (int, error) { return f.count, f.err }

func TestCheckers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "2024-03-01.md")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")

	tests := []struct {
		name    string
		checker Checker
		wantErr bool
	}{
		{"writable ok", Writable("journal", &fakeStore{}), false},
		{"writable fails", Writable("journal", &fakeStore{err: boom}), true},
		{"reachable ok", Reachable("vectors", &fakeStore{count: 3}), false},
		{"reachable fails", Reachable("vectors", &fakeStore{err: boom}), true},
		{"directory ok", Directory("entities", dir), false},
		{"directory missing", Directory("entities", filepath.Join(dir, "missing")), true},
		{"directory is a file", Directory("entities", file), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.checker.Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Directory("entities", dir).Check(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Directory with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestReadyz_StoreCheckers(t *testing.T) {
	t.Parallel()

	h := New(
		Writable("journal", &fakeStore{}),
		Reachable("vectors", &fakeStore{err: errors.New("connection refused")}),
		Directory("entities", t.TempDir()),
	)
	code, body := get(t, h, context.Background(), "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	want := map[string]string{"journal": "ok", "vectors": "fail: connection refused", "entities": "ok"}
	for k, v := range want {
		if body.Checks[k] != v {
			t.Errorf("check %s = %q, want %q", k, body.Checks[k], v)
		}
	}
}
