// Package admin serves a small HTTP surface over the running proxy:
// health, counters and a cache flush.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/treemana/dnstun/cache"
	"github.com/treemana/dnstun/log"
	"github.com/treemana/dnstun/proxy"
)

type StatsSource interface {
	Stats() proxy.Stats
}

type statsResponse struct {
	Proxy proxy.Stats `json:"proxy"`
	Cache cache.Stats `json:"cache"`
}

// NewRouter creates the admin HTTP router.
func NewRouter(p StatsSource, c *cache.Cache) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsResponse{Proxy: p.Stats(), Cache: c.Stats()})
	})

	r.Delete("/cache", func(w http.ResponseWriter, r *http.Request) {
		n := c.Flush()
		log.Sugar.Infof("admin flushed %d cache entries", n)
		writeJSON(w, http.StatusOK, map[string]int{"flushed": n})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Sugar.Warnf("admin write response error=[%+v]", err)
	}
}

type Server struct {
	ln  net.Listener
	srv *http.Server
}

func New(address string, h http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Server{
		ln:  ln,
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

func (s *Server) Start() {
	go func() {
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Sugar.Errorf("admin serve error=[%+v]", err)
		}
	}()
	log.Sugar.Infof("admin listening on %s", s.ln.Addr())
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Sugar.Errorf("admin shutdown error=[%+v]", err)
	}
}
