package generichttp_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/roboajay/gravity-compensation/generichttp"
)

func TestBindAndEndpoints(t *testing.T) {
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/ticks"}: generichttp.GetInt(func() (int, error) { return 42, nil }),
		{Method: http.MethodGet, Path: "/fail"}:  generichttp.GetInt(func() (int, error) { return 0, errors.New("boom") }),
	}
	eps := rt.Endpoints()
	if len(eps) != 2 || eps[0] != "GET /fail" || eps[1] != "GET /ticks" {
		t.Errorf("unexpected endpoints %v", eps)
	}
	r := chi.NewRouter()
	rt.Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ticks", nil))
	i := generichttp.IntT{}
	if err := json.NewDecoder(w.Body).Decode(&i); err != nil {
		t.Fatal(err)
	}
	if i.Int != 42 {
		t.Errorf("expected 42, got %d", i.Int)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ticks", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestRespondJSONEncodeFailureIsA500(t *testing.T) {
	w := httptest.NewRecorder()
	generichttp.RespondJSON(w, map[string]interface{}{"bad": make(chan int)})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct == "application/json" {
		t.Error("a failed encode should not be labeled as json")
	}
}

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()
	generichttp.RespondJSON(w, []int{1, 2})
	if w.Code != http.StatusOK || w.Body.String() != "[1,2]\n" {
		t.Errorf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %q", ct)
	}
}
