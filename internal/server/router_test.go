package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/musikai/musikd/internal/shared"
)

func TestBasicRouter(t *testing.T) {
	t.Run("MethodEnforcement", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodPost, "/submit", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit", nil))
		if rec.Code != http.StatusCreated {
			t.Errorf("expected 201 for POST, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submit", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405 for GET, got %d", rec.Code)
		}
	})

	t.Run("OptionsPassesThrough", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(CORSMiddleware("http://localhost:5173"))
		router.Handle(http.MethodPost, "/submit", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/submit", nil))

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected CORS middleware to answer preflight with 204, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("unexpected allow-origin %q", got)
		}
	})

	t.Run("MiddlewareOrder", func(t *testing.T) {
		router := NewBasicRouter()

		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router.Use(mw("first"), mw("second"))
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

		want := []string{"first", "second", "handler"}
		if len(order) != len(want) {
			t.Fatalf("expected %v, got %v", want, order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, order)
			}
		}
	})

	t.Run("RecoveryMiddleware", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(RecoveryMiddleware(shared.NewLogger(nil)))
		router.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("kaboom")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 after panic, got %d", rec.Code)
		}
	})
}
