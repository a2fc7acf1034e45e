// Package generichttp binds tables of HTTP handlers to chi routers
// and holds small helpers for JSON handlers.
package generichttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and a chi route pattern
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method and path pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes in the table as "METHOD /path", sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	sort.Strings(routes)
	return routes
}

// Bind binds every route in the table to r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, h := range rt {
		r.MethodFunc(mp.Method, mp.Path, h)
	}
}

// HTTPer is an object that has a table of routes
type HTTPer interface {
	RT() RouteTable
}

// IntT is a struct with a single Int field
type IntT struct {
	Int int `json:"int"`
}

// RespondJSON encodes v as the JSON body of a 200 response
func RespondJSON(w http.ResponseWriter, v interface{}) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		RespondJSON(w, IntT{Int: i})
	}
}
