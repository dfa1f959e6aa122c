package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/absmach/fltrain/pkg/dataset"
	"github.com/absmach/fltrain/pkg/model"
	"github.com/absmach/fltrain/pkg/rpc"
	"github.com/absmach/fltrain/trainconfig"
	"github.com/absmach/fltrain/worker"
	"github.com/gorilla/websocket"
)

const workerID = "alice"

// blockingService holds every fit open until its context ends.
type blockingService struct {
	worker.Service
	started chan struct{}
	done    chan error
}

func (s *blockingService) Fit(ctx context.Context, handle, datasetKey string) (worker.FitResult, error) {
	close(s.started)
	<-ctx.Done()
	s.done <- ctx.Err()

	return worker.FitResult{}, ctx.Err()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestService(t *testing.T) worker.Service {
	t.Helper()

	store := dataset.NewStore()
	for _, d := range dataset.Samples() {
		if err := store.Add(d); err != nil {
			t.Fatalf("Failed to add dataset: %v", err)
		}
	}

	return worker.NewService(workerID, store, nil, nil, 0, testLogger())
}

func serve(t *testing.T, svc worker.Service, maxFrameSize int64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(MakeHandler(svc, maxFrameSize, testLogger()))
	t.Cleanup(srv.Close)

	return srv
}

func newTestServer(t *testing.T) (*httptest.Server, worker.Service) {
	t.Helper()

	svc := newTestService(t)

	return serve(t, svc, 0), svc
}

func wsURL(srv *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id=" + id
}

func sampleConfig(t *testing.T) trainconfig.TrainConfig {
	t.Helper()

	m, err := model.New([]int{2, 1}, []model.Activation{model.Identity}, rand.New(rand.NewPCG(3, 5)))
	if err != nil {
		t.Fatalf("Failed to build model: %v", err)
	}
	data, err := model.Encode(m)
	if err != nil {
		t.Fatalf("Failed to encode model: %v", err)
	}
	cfg, err := trainconfig.New(data, model.LossMSE, model.OptimizerAdam, trainconfig.DefaultHyperparams())
	if err != nil {
		t.Fatalf("Failed to build train config: %v", err)
	}

	return cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHTTPRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK, wantBody: `"status":"ok"`},
		{name: "stats", path: "/stats", wantStatus: http.StatusOK, wantBody: `"worker_id":"alice"`},
		{name: "datasets", path: "/datasets", wantStatus: http.StatusOK, wantBody: `"key":"linear"`},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK, wantBody: "go_goroutines"},
		{name: "unknown route", path: "/workers", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("Failed to read body: %v", err)
			}
			if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("Expected body to contain %s, got %s", tt.wantBody, body)
			}
		})
	}
}

func TestSessionRejectsMismatchedWorker(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "bob"), nil)
	if err == nil {
		t.Fatal("Expected handshake to fail, got nil")
	}
	if resp == nil {
		t.Fatal("Expected an HTTP response with the failed handshake")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, resp.StatusCode)
	}

	var body errorRes
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	if body.Code != "worker_mismatch" {
		t.Errorf("Expected code worker_mismatch, got %s", body.Code)
	}
}

func TestSessionFrames(t *testing.T) {
	srv, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, workerID), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	tests := []struct {
		name     string
		frame    string
		wantID   uint64
		wantCode string
	}{
		{name: "datasets", frame: `{"id":1,"method":"datasets"}`, wantID: 1},
		{name: "malformed frame", frame: `{"id":`, wantID: 0, wantCode: "invalid_params"},
		{name: "unknown method", frame: `{"id":2,"method":"predict"}`, wantID: 2, wantCode: "unknown_method"},
		{name: "missing params", frame: `{"id":3,"method":"fit"}`, wantID: 3, wantCode: "invalid_params"},
		{name: "unknown handle", frame: `{"id":4,"method":"model","params":{"handle":"nope"}}`, wantID: 4, wantCode: "handle_not_found"},
		{name: "invalid config", frame: `{"id":5,"method":"register","params":{"config":{"loss":"mse"}}}`, wantID: 5, wantCode: "invalid_config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatalf("Failed to write frame: %v", err)
			}

			var resp rpc.Response
			if err := conn.ReadJSON(&resp); err != nil {
				t.Fatalf("Failed to read response: %v", err)
			}
			if resp.ID != tt.wantID {
				t.Errorf("Expected response id %d, got %d", tt.wantID, resp.ID)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %q (%s)", tt.wantCode, resp.Code, resp.Error)
			}
		})
	}
}

func TestSessionCloseReleasesHandles(t *testing.T) {
	srv, svc := newTestServer(t)

	svcHandleCount := func() int { return svc.Stats(context.Background()).ActiveHandles }

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, workerID), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	// Handles of other sessions survive this one.
	if _, err := svc.RegisterConfig(context.Background(), "other", sampleConfig(t)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req, err := rpc.NewRequest(1, rpc.MethodRegister, rpc.RegisterParams{Config: sampleConfig(t)})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	var resp rpc.Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if err := resp.Err(); err != nil {
		t.Fatalf("Unexpected register error: %v", err)
	}
	if got := svcHandleCount(); got != 2 {
		t.Fatalf("Expected 2 handles, got %d", got)
	}

	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("Failed to write close: %v", err)
	}
	// Drain until the close reply arrives.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	conn.Close()

	waitFor(t, func() bool { return svcHandleCount() == 1 })
}

func TestSessionReadLimit(t *testing.T) {
	svc := newTestService(t)
	srv := serve(t, svc, 1024)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, workerID), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"datasets"}`)); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	var resp rpc.Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if err := resp.Err(); err != nil {
		t.Fatalf("Expected a small frame to be served, got %v", err)
	}

	oversized := `{"id":2,"method":"datasets","params":{"pad":"` + strings.Repeat("x", 4096) + `"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(oversized)); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Errorf("Expected close code %d, got %v", websocket.CloseMessageTooBig, err)
	}
}

func TestSessionDisconnectCancelsFit(t *testing.T) {
	svc := &blockingService{
		Service: newTestService(t),
		started: make(chan struct{}),
		done:    make(chan error, 1),
	}
	srv := serve(t, svc, 0)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, workerID), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	frame := `{"id":1,"method":"fit","params":{"handle":"h1","dataset_key":"linear"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the fit to start")
	}

	conn.Close()

	select {
	case err := <-svc.done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected error %v, got %v", context.Canceled, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the running fit to be cancelled after disconnect")
	}
}
