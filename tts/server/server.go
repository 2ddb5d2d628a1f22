// Package server exposes the generation pipeline over HTTP. The
// generate endpoint streams one frame per sentence, in sentence order;
// the remaining endpoints are small JSON surfaces for discovery and
// operations.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/cache"
	"github.com/readaloud/readaloud/tts/engines"
	"github.com/readaloud/readaloud/tts/scheduler"
	"github.com/readaloud/readaloud/tts/sentence"
)

// Server wires the segmenter, scheduler and cache behind HTTP.
type Server struct {
	cfg       tts.Config
	engine    engines.Engine
	store     *cache.Store
	sched     *scheduler.Scheduler
	seg       *sentence.Segmenter
	limiter   *rate.Limiter
	startedAt time.Time

	httpSrv *http.Server
}

// New creates a server over an already-wired pipeline.
func New(cfg tts.Config, engine engines.Engine, store *cache.Store, sched *scheduler.Scheduler) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		store:     store,
		sched:     sched,
		seg:       sentence.NewSegmenter(),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestBurst),
		startedAt: time.Now(),
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tts/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/tts/voices", s.handleVoices)
	mux.HandleFunc("GET /api/tts/presets", s.handlePresets)
	mux.HandleFunc("GET /api/tts/status", s.handleStatus)
	mux.HandleFunc("POST /api/tts/cache/clear", s.handleCacheClear)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", s.cfg.ListenAddr, "engine", s.engine.Name())
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// generateRequest is the JSON body of the generate endpoint.
type generateRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Preset string `json:"preset"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		httpError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if !s.engine.Available() {
		httpError(w, http.StatusServiceUnavailable, "synthesis engine is not available")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		httpError(w, http.StatusBadRequest, tts.ErrEmptyText.Error())
		return
	}
	if len(req.Text) > s.cfg.MaxTextLength {
		httpError(w, http.StatusBadRequest,
			fmt.Sprintf("text exceeds %d bytes", s.cfg.MaxTextLength))
		return
	}
	if req.Voice == "" {
		req.Voice = tts.DefaultVoice
	}
	if req.Preset == "" {
		req.Preset = tts.DefaultPreset
	}
	if !tts.ValidPreset(req.Preset) {
		httpError(w, http.StatusBadRequest, tts.ErrInvalidPreset.Error())
		return
	}
	if !engines.HasVoice(s.engine, req.Voice) {
		httpError(w, http.StatusBadRequest, tts.ErrVoiceNotFound.Error())
		return
	}

	sentences := s.seg.Segment(req.Text)
	if len(sentences) == 0 {
		httpError(w, http.StatusBadRequest, tts.ErrEmptyText.Error())
		return
	}

	requestID := uuid.NewString()
	logger := log.With("request_id", requestID)
	logger.Info("generate request",
		"sentences", len(sentences), "voice", req.Voice, "preset", req.Preset)

	// Everything is enqueued up front so the worker pool stays busy
	// while earlier sentences stream out. The group ensures a failed
	// sentence purges the rest of this request's queue.
	group := scheduler.NewGroup()
	tickets := make([]*scheduler.Ticket, 0, len(sentences))
	for _, sent := range sentences {
		ticket, _, err := s.sched.Submit(sent, req.Voice, req.Preset, group)
		if err != nil {
			for _, t := range tickets {
				t.Cancel()
			}
			httpError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		tickets = append(tickets, ticket)
	}
	defer func() {
		for _, t := range tickets {
			t.Cancel()
		}
	}()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(tts.HeaderSentenceCount, strconv.Itoa(len(sentences)))
	w.Header().Set(tts.HeaderRequestID, requestID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for i, ticket := range tickets {
		unit, err := ticket.Await(r.Context())
		if err != nil {
			// The client sees the error marker in-stream; sentences
			// already delivered stay valid on its side.
			logger.Error("sentence failed", "index", i, "err", err)
			_ = tts.WriteFrame(w, tts.Frame{
				Type:    tts.FrameError,
				Index:   i,
				Payload: []byte(err.Error()),
			})
			return
		}

		// Pin the unit so eviction cannot race the write.
		pinned := s.store.Retain(unit.Key)
		werr := tts.WriteFrame(w, tts.Frame{
			Type:    tts.FrameAudio,
			Index:   i,
			Payload: unit.Data,
		})
		if pinned {
			s.store.Release(unit.Key)
		}
		if werr != nil {
			logger.Debug("client went away", "index", i, "err", werr)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	logger.Info("generate complete", "sentences", len(sentences))
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	type voiceJSON struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	voices := s.engine.Voices()
	out := make([]voiceJSON, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceJSON{ID: v.ID, Name: v.Name, Language: v.Language})
	}
	writeJSON(w, map[string]any{
		"voices":    out,
		"default":   tts.DefaultVoice,
		"available": s.engine.Available(),
	})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	type presetJSON struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	presets := tts.Presets()
	out := make([]presetJSON, 0, len(presets))
	for _, p := range presets {
		out = append(out, presetJSON{ID: p.ID, Description: p.Description})
	}
	writeJSON(w, map[string]any{"presets": out, "default": tts.DefaultPreset})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cacheStats := s.store.Stats()
	schedStats := s.sched.Stats()
	writeJSON(w, map[string]any{
		"engine": map[string]any{
			"name":      s.engine.Name(),
			"available": s.engine.Available(),
			"voices":    len(s.engine.Voices()),
		},
		"scheduler": map[string]any{
			"queued":  schedStats.Queued,
			"running": schedStats.Running,
			"workers": s.cfg.Workers,
		},
		"cache": map[string]any{
			"units":      cacheStats.Units,
			"bytes":      cacheStats.Bytes,
			"size_human": humanize.Bytes(uint64(cacheStats.Bytes)),
		},
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Info("cache cleared")
	writeJSON(w, map[string]any{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"tts_service": s.engine.Available(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
