// Package observer serves one-shot state fetches for dashboards and
// render tooling: the same WELCOME plus keyframe a ws attach hands out,
// over plain HTTP.
package observer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"gardensim.ai/internal/protocol"
	"gardensim.ai/internal/sim/world"
)

type Server struct {
	world *world.World
}

func NewServer(w *world.World) *Server {
	return &Server{world: w}
}

// BootstrapResponse bundles the attach handshake into one HTTP body.
type BootstrapResponse struct {
	Welcome  protocol.WelcomeMsg `json:"welcome"`
	Keyframe protocol.FrameMsg   `json:"keyframe"`
}

// BootstrapHandler answers GETs with the current world state. The attach
// request carries no out channel, so the session is never registered for
// broadcast and needs no detach.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := make(chan world.AttachResponse, 1)
		select {
		case s.world.Attach() <- world.AttachRequest{ClientName: "bootstrap", Resp: resp}:
		case <-ctx.Done():
			http.Error(rw, "world loop busy", http.StatusServiceUnavailable)
			return
		}
		select {
		case ar := <-resp:
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(BootstrapResponse{Welcome: ar.Welcome, Keyframe: ar.Keyframe})
		case <-ctx.Done():
			http.Error(rw, "world loop busy", http.StatusServiceUnavailable)
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
