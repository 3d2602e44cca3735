package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/callerid"
	"dialer-platform/internal/config"
	"dialer-platform/internal/control"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/events"
	"dialer-platform/internal/monitor"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/readiness"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/routing"
	"dialer-platform/internal/speech"
	"dialer-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// newTestRouter wires the full API against in-memory backends and a
// stub auth middleware that injects a fixed operator identity.
func newTestRouter(t *testing.T) (*gin.Engine, Handlers) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	bsvc := broadcast.NewService(broadcast.NewMemoryStore())
	qsvc := queue.NewService(queue.NewMemoryStore())
	dir := callerid.NewMemoryDirectory()
	sel := callerid.NewSelector(dir, callerid.NewMemoryUsageCounter())
	checker := readiness.NewChecker(sel, qsvc)
	adapter := telephony.NewMemoryAdapter()
	bucket := dialer.NewMemoryTokenBucket()

	cfg := config.DialerConfig{
		TickInterval:        time.Hour,
		StuckThreshold:      2 * time.Minute,
		MonitorInterval:     time.Hour,
		DispatchTimeout:     time.Second,
		TestBatchSize:       10,
		HighVolumeLeadCount: 1000,
		LowNumberCount:      5,
	}
	pacer := dialer.NewPacer(bsvc, qsvc, sel, routing.NewEngine(routing.NewMemoryTrunkHealth(), nil), adapter, bucket, cfg, log)
	mon := monitor.New(bsvc, qsvc, adapter, nil, cfg, log)
	bus := events.NewBus(16)
	ctrl := control.NewService(bsvc, qsvc, checker, pacer, mon, adapter,
		audit.NewService(audit.NewMemoryRepo(), log), bus, cfg, log)
	t.Cleanup(ctrl.Shutdown)

	h := Handlers{
		Broadcasts: bsvc,
		Queue:      qsvc,
		Control:    ctrl,
		Reports:    reporting.NewService(reporting.NewServiceRepo(bsvc, qsvc)),
		Numbers:    dir,
		Synth:      speech.NewMemorySynthesizer(),
		Bus:        bus,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u1", "ws1", "operator")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	v1 := r.Group("/v1")
	{
		v1.POST("/broadcasts", h.CreateBroadcast)
		v1.GET("/broadcasts/:id", h.GetBroadcast)
		v1.POST("/broadcasts/:id/audio", h.GenerateAudio)
		v1.POST("/broadcasts/:id/leads", h.EnqueueLeads)
		v1.POST("/broadcasts/:id/start", h.StartBroadcast)
		v1.GET("/broadcasts/:id/stats", h.GetStats)
		v1.GET("/broadcasts/:id/readiness", h.GetReadiness)
		v1.GET("/broadcasts/:id/summary", h.GetSummary)
		v1.POST("/numbers", h.UpsertNumber)
	}
	return r, h
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func createBroadcast(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w, out := doJSON(t, r, http.MethodPost, "/v1/broadcasts", gin.H{
		"name":             "school closure notice",
		"message_text":     "school is closed tomorrow",
		"calls_per_minute": 5,
		"max_attempts":     2,
		"calling_hours":    gin.H{"bypass": true},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatalf("create response missing id: %v", out)
	}
	return id
}

func TestCreateAndGetBroadcast(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createBroadcast(t, r)

	w, out := doJSON(t, r, http.MethodGet, "/v1/broadcasts/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if out["name"] != "school closure notice" || out["status"] != "draft" {
		t.Fatalf("broadcast = %v", out)
	}
}

func TestGetUnknownBroadcastReturns404(t *testing.T) {
	r, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodGet, "/v1/broadcasts/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestEnqueueSkipsLiveDuplicates(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createBroadcast(t, r)

	leads := gin.H{"leads": []gin.H{
		{"lead_id": "l1", "phone": "+14155550001"},
		{"lead_id": "l2", "phone": "+14155550002"},
	}}
	w, out := doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/leads", leads)
	if w.Code != http.StatusOK || out["inserted"].(float64) != 2 {
		t.Fatalf("first enqueue = %d %v", w.Code, out)
	}
	w, out = doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/leads", leads)
	if w.Code != http.StatusOK || out["inserted"].(float64) != 0 || out["skipped"].(float64) != 2 {
		t.Fatalf("second enqueue = %d %v", w.Code, out)
	}

	// Skipped duplicates never inflate the leads counter.
	_, got := doJSON(t, r, http.MethodGet, "/v1/broadcasts/"+id, nil)
	counters, ok := got["counters"].(map[string]any)
	if !ok {
		t.Fatalf("broadcast body = %v", got)
	}
	if counters["leads_total"].(float64) != 2 {
		t.Fatalf("leads_total = %v, want 2", counters["leads_total"])
	}
}

func TestGenerateAudioStoresURL(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createBroadcast(t, r)

	w, out := doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/audio", gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("audio = %d: %s", w.Code, w.Body.String())
	}
	if out["audio_url"] == "" {
		t.Fatalf("audio response = %v", out)
	}

	_, got := doJSON(t, r, http.MethodGet, "/v1/broadcasts/"+id, nil)
	if got["audio_url"] != out["audio_url"] {
		t.Fatalf("broadcast audio url = %v, want %v", got["audio_url"], out["audio_url"])
	}
}

func TestStartNotReadyReturns422(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createBroadcast(t, r)

	w, out := doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/start", gin.H{})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("start = %d, want 422: %s", w.Code, w.Body.String())
	}
	if out["checks"] == nil {
		t.Fatalf("response missing checks: %v", out)
	}
}

func TestStartSucceedsWhenReady(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createBroadcast(t, r)

	if w, _ := doJSON(t, r, http.MethodPost, "/v1/numbers", gin.H{"number": "+12125550001"}); w.Code != http.StatusNoContent {
		t.Fatalf("upsert number = %d", w.Code)
	}
	doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/audio", gin.H{})
	doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/leads", gin.H{"leads": []gin.H{
		{"lead_id": "l1", "phone": "+14155550001"},
	}})

	w, out := doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/start", gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", w.Code, w.Body.String())
	}
	if out["status"] != "active" {
		t.Fatalf("start response = %v", out)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	id := createBroadcast(t, r)
	doJSON(t, r, http.MethodPost, "/v1/broadcasts/"+id+"/leads", gin.H{"leads": []gin.H{
		{"lead_id": "l1", "phone": "+14155550001"},
		{"lead_id": "l2", "phone": "+14155550002"},
	}})

	w, out := doJSON(t, r, http.MethodGet, "/v1/broadcasts/"+id+"/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary = %d", w.Code)
	}
	if out["total_items"].(float64) != 2 || out["pending"].(float64) != 2 {
		t.Fatalf("summary = %v", out)
	}
}
