package telemetry

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/roboajay/gravity-compensation/generichttp"
)

// HTTPWrapper serves a Recorder over HTTP
type HTTPWrapper struct {
	*Recorder

	generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table populated
func NewHTTPWrapper(rec *Recorder) HTTPWrapper {
	w := HTTPWrapper{Recorder: rec}
	w.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/channels"}:              w.GetChannels,
		{Method: http.MethodGet, Path: "/channel/{id}/latest"}:  w.GetLatest,
		{Method: http.MethodGet, Path: "/channel/{id}/history"}: w.GetHistory,
		{Method: http.MethodGet, Path: "/ticks"}: generichttp.GetInt(func() (int, error) {
			return int(rec.Ticks()), nil
		}),
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetChannels returns the channel ids as a JSON array
func (h HTTPWrapper) GetChannels(w http.ResponseWriter, r *http.Request) {
	ids := h.IDs()
	// []uint8 would encode as base64
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	generichttp.RespondJSON(w, out)
}

// GetLatest returns the latest observation of a channel
func (h HTTPWrapper) GetLatest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, ok := h.Latest(id)
	if !ok {
		http.Error(w, fmt.Sprintf("no observations of channel %d", id), http.StatusNotFound)
		return
	}
	generichttp.RespondJSON(w, o)
}

// GetHistory returns the retained observations of a channel, oldest first
func (h HTTPWrapper) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	obs, ok := h.History(id)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown channel %d", id), http.StatusNotFound)
		return
	}
	generichttp.RespondJSON(w, obs)
}

func parseID(r *http.Request) (uint8, error) {
	s := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid channel id %q", s)
	}
	return uint8(id), nil
}
