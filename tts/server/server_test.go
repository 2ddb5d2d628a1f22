package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/cache"
	"github.com/readaloud/readaloud/tts/engines/mock"
	"github.com/readaloud/readaloud/tts/scheduler"
)

func newTestServer(t *testing.T) (*Server, *mock.Engine) {
	t.Helper()

	cfg := tts.DefaultConfig()
	cfg.RequestsPerSec = 1000
	cfg.RequestBurst = 1000

	engine := mock.New(tts.MockConfig{})
	store, err := cache.New(cache.Config{})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	sched := scheduler.New(engine, store, scheduler.Config{})
	t.Cleanup(func() {
		_ = sched.Close()
		_ = store.Close()
	})

	return New(cfg, engine, store, sched), engine
}

func postGenerate(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/tts/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestGenerateStreamsAllSentences(t *testing.T) {
	s, _ := newTestServer(t)

	w := postGenerate(t, s, `{"text": "First sentence. Second sentence. Third sentence."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	count, err := strconv.Atoi(w.Header().Get(tts.HeaderSentenceCount))
	if err != nil || count != 3 {
		t.Fatalf("%s = %q, want 3", tts.HeaderSentenceCount, w.Header().Get(tts.HeaderSentenceCount))
	}
	if w.Header().Get(tts.HeaderRequestID) == "" {
		t.Errorf("Missing %s header", tts.HeaderRequestID)
	}

	body := bytes.NewReader(w.Body.Bytes())
	for i := 0; i < count; i++ {
		f, err := tts.ReadFrame(body)
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if f.Type != tts.FrameAudio {
			t.Fatalf("Frame %d type = %c, want audio", i, f.Type)
		}
		if f.Index != i {
			t.Errorf("Frame index = %d, want %d", f.Index, i)
		}
		if _, _, _, err := tts.DecodeWAV(f.Payload); err != nil {
			t.Errorf("Frame %d payload is not WAV: %v", i, err)
		}
	}
	if _, err := tts.ReadFrame(body); err != io.EOF {
		t.Errorf("Expected clean EOF after last frame, got %v", err)
	}
}

func TestGenerateEmptyText(t *testing.T) {
	s, _ := newTestServer(t)

	for _, body := range []string{`{"text": ""}`, `{"text": "   \n\t "}`} {
		if w := postGenerate(t, s, body); w.Code != http.StatusBadRequest {
			t.Errorf("Body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestGenerateInvalidInput(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{not json`},
		{"unknown preset", `{"text": "Hello.", "preset": "warp_speed"}`},
		{"unknown voice", `{"text": "Hello.", "voice": "nobody"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := postGenerate(t, s, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGenerateTextTooLong(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.MaxTextLength = 10

	if w := postGenerate(t, s, `{"text": "This text is much longer than ten bytes."}`); w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestGenerateEngineUnavailable(t *testing.T) {
	s, engine := newTestServer(t)
	_ = engine.Shutdown()

	if w := postGenerate(t, s, `{"text": "Hello."}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", w.Code)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.RequestsPerSec = 0.001
	s.limiter.SetLimit(0.001)
	s.limiter.SetBurst(1)

	if w := postGenerate(t, s, `{"text": "Hello."}`); w.Code != http.StatusOK {
		t.Fatalf("First request status = %d, want 200", w.Code)
	}
	if w := postGenerate(t, s, `{"text": "Hello again."}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("Second request status = %d, want 429", w.Code)
	}
}

func TestGenerateMidStreamFailure(t *testing.T) {
	s, engine := newTestServer(t)

	// Warm the cache with the first sentence, then break the engine so
	// the second sentence fails.
	if w := postGenerate(t, s, `{"text": "First sentence here."}`); w.Code != http.StatusOK {
		t.Fatalf("Warmup status = %d", w.Code)
	}
	engine.SetFailure(errors.New("model exploded"))

	w := postGenerate(t, s, `{"text": "First sentence here. Second sentence here."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}

	body := bytes.NewReader(w.Body.Bytes())

	f, err := tts.ReadFrame(body)
	if err != nil {
		t.Fatalf("ReadFrame 0: %v", err)
	}
	if f.Type != tts.FrameAudio || f.Index != 0 {
		t.Fatalf("Frame 0 = (%c, %d), want cached audio", f.Type, f.Index)
	}

	f, err = tts.ReadFrame(body)
	if err != nil {
		t.Fatalf("ReadFrame 1: %v", err)
	}
	if f.Type != tts.FrameError || f.Index != 1 {
		t.Fatalf("Frame 1 = (%c, %d), want error marker", f.Type, f.Index)
	}
	if len(f.Payload) == 0 {
		t.Error("Error frame should carry a message")
	}

	if _, err := tts.ReadFrame(body); err != io.EOF {
		t.Errorf("Stream must end after the error marker, got %v", err)
	}
}

func getJSON(t *testing.T, s *Server, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code == http.StatusOK && out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("Unmarshal %s: %v", path, err)
		}
	}
	return w
}

func TestVoicesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var resp struct {
		Voices []struct {
			ID string `json:"id"`
		} `json:"voices"`
		Default string `json:"default"`
	}
	if w := getJSON(t, s, "/api/tts/voices", &resp); w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if len(resp.Voices) == 0 {
		t.Error("Expected at least one voice")
	}
	if resp.Default != tts.DefaultVoice {
		t.Errorf("Default = %q, want %q", resp.Default, tts.DefaultVoice)
	}
}

func TestPresetsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var resp struct {
		Presets []struct {
			ID string `json:"id"`
		} `json:"presets"`
		Default string `json:"default"`
	}
	if w := getJSON(t, s, "/api/tts/presets", &resp); w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if len(resp.Presets) != 4 {
		t.Errorf("Expected 4 presets, got %d", len(resp.Presets))
	}
	if resp.Default != tts.DefaultPreset {
		t.Errorf("Default = %q, want %q", resp.Default, tts.DefaultPreset)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	if w := postGenerate(t, s, `{"text": "Put something in the cache."}`); w.Code != http.StatusOK {
		t.Fatalf("Generate status = %d", w.Code)
	}

	var resp struct {
		Engine struct {
			Name      string `json:"name"`
			Available bool   `json:"available"`
		} `json:"engine"`
		Cache struct {
			Units int `json:"units"`
		} `json:"cache"`
	}
	if w := getJSON(t, s, "/api/tts/status", &resp); w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if resp.Engine.Name != "mock" || !resp.Engine.Available {
		t.Errorf("Engine = %+v", resp.Engine)
	}
	if resp.Cache.Units != 1 {
		t.Errorf("Cache units = %d, want 1", resp.Cache.Units)
	}
}

func TestCacheClearEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	if w := postGenerate(t, s, `{"text": "Fill the cache."}`); w.Code != http.StatusOK {
		t.Fatalf("Generate status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tts/cache/clear", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Clear status = %d", w.Code)
	}

	if stats := s.store.Stats(); stats.Units != 0 {
		t.Errorf("Cache units after clear = %d, want 0", stats.Units)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var resp struct {
		Status string `json:"status"`
	}
	if w := getJSON(t, s, "/health", &resp); w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}
