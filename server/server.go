// Package server exposes a loaded reference index over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jwaldrip/odin/cli"
	"github.com/ngsalign/ra/alignment"
	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/mapngs"
	"github.com/ngsalign/ra/pairend"
	"github.com/ngsalign/ra/refgenome"
	"github.com/ngsalign/ra/utils"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 60 * time.Second

// Server answers search and alignment requests against one index.
type Server struct {
	idx    mapngs.IndexProvider
	mapper *mapngs.Mapper
}

func New(idx mapngs.IndexProvider, opt mapngs.Options, pair pairend.Options, seed int64) *Server {
	return &Server{idx: idx, mapper: mapngs.NewMapper(idx, opt, pair, seed, 1)}
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sequences", s.sequences)
		r.Post("/search", s.search)
		r.Post("/align", s.align)
		r.Post("/align/pair", s.alignPair)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		t0 := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"req":    middleware.GetReqID(r.Context()),
			"status": ww.Status(),
			"bytes":  ww.BytesWritten(),
			"took":   time.Since(t0),
		}).Infof("[requestLogger] %s %s", r.Method, r.URL.Path)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("[writeJSON] %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) sequences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.idx.SequencesMetadata())
}

type SearchRequest struct {
	Pattern string `json:"pattern"`
}

type SearchResponse struct {
	Hits []refgenome.Hit `json:"hits"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	pattern := strings.ToUpper(req.Pattern)
	if pattern == "" || !bnt.DNAMasked.Valid(pattern) {
		writeError(w, http.StatusBadRequest, "pattern must be a non empty ACGTN string")
		return
	}
	hits := s.idx.Search(pattern)
	if hits == nil {
		hits = []refgenome.Hit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits})
}

type AlignResponse struct {
	Alignments []alignment.ReadAlignment `json:"alignments"`
}

func validRead(w http.ResponseWriter, rd *alignment.Read, field string) bool {
	rd.Seq = strings.ToUpper(rd.Seq)
	switch {
	case rd.Seq == "":
		writeError(w, http.StatusBadRequest, field+": empty sequence")
		return false
	case rd.Qual != "" && len(rd.Qual) != len(rd.Seq):
		writeError(w, http.StatusBadRequest, field+": quality length differs from sequence")
		return false
	}
	return true
}

func (s *Server) align(w http.ResponseWriter, r *http.Request) {
	var rd alignment.Read
	if !decode(w, r, &rd) || !validRead(w, &rd, "read") {
		return
	}
	recs, _ := s.mapper.MapSingle(rd)
	writeJSON(w, http.StatusOK, AlignResponse{Alignments: recs})
}

type PairRequest struct {
	Read1 alignment.Read `json:"read1"`
	Read2 alignment.Read `json:"read2"`
}

type PairResponse struct {
	Records  []alignment.ReadAlignment `json:"records"`
	Category string                    `json:"category"`
}

func (s *Server) alignPair(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if !decode(w, r, &req) || !validRead(w, &req.Read1, "read1") || !validRead(w, &req.Read2, "read2") {
		return
	}
	recs, cat, _ := s.mapper.MapPair(req.Read1, req.Read2, 0)
	writeJSON(w, http.StatusOK, PairResponse{Records: recs, Category: cat.String()})
}

// ListenAndServe runs until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Infof("[ListenAndServe] listening on http://%s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	log.Infof("[ListenAndServe] server stopped")
	return nil
}

func Serve(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[Serve] check global Arguments error, opt: %v", gOpt)
	}
	addr := c.Flag("Addr").String()
	if addr == "" {
		log.Fatalf("[Serve] argument 'Addr' not set")
	}
	g, err := refgenome.Load(gOpt.Prefix)
	if err != nil {
		log.Fatalf("[Serve] load index %s: %v", gOpt.Prefix, err)
	}
	opt := mapngs.DefaultOptions()
	opt.KmerLength = gOpt.Kmer
	if err = opt.Check(); err != nil {
		log.Fatalf("[Serve] %v", err)
	}
	s := New(g, opt, pairend.DefaultOptions(), time.Now().UnixNano())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err = s.ListenAndServe(ctx, addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[Serve] %v", err)
	}
}
