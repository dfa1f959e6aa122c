package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/absmach/fltrain"
	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/pkg/rpc"
	"github.com/absmach/fltrain/worker"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readBufferSize  = 1 << 16
	writeBufferSize = 1 << 16
	closeGrace      = time.Second
)

// SessionHandler upgrades coordinator connections and serves rpc frames
// until the peer disconnects. Every handle created on a session is released
// when it ends, and a fit still running when the peer goes away is cancelled.
type SessionHandler struct {
	svc          worker.Service
	upgrader     websocket.Upgrader
	maxFrameSize int64
	logger       *slog.Logger
}

// NewSessionHandler serves sessions for svc. A maxFrameSize of zero or less
// selects fltrain.DefaultMaxFrameSize.
func NewSessionHandler(svc worker.Service, maxFrameSize int64, logger *slog.Logger) *SessionHandler {
	if maxFrameSize <= 0 {
		maxFrameSize = fltrain.DefaultMaxFrameSize
	}

	return &SessionHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
		},
		maxFrameSize: maxFrameSize,
		logger:       logger,
	}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != h.svc.ID() {
		encodeError(r.Context(), fmt.Errorf("worker '%s' asked for '%s': %w", h.svc.ID(), id, pkgerrors.ErrWorkerMismatch), w)

		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("failed to upgrade session", slog.String("remote", r.RemoteAddr), slog.Any("error", err))

		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.maxFrameSize)

	session := uuid.NewString()
	logger := h.logger.With(slog.String("session", session), slog.String("remote", r.RemoteAddr))

	// The hijacked connection outlives the request context, so the session
	// context ends with the read loop instead.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	worker.SessionsActive.WithLabelValues(h.svc.ID()).Inc()
	defer worker.SessionsActive.WithLabelValues(h.svc.ID()).Dec()
	logger.Info("session opened")

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		defer cancel()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("session read failed", slog.Any("error", err))
				}

				return
			}

			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range frames {
		resp := h.handle(ctx, session, data)
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("session write failed", slog.Any("error", err))

			break
		}
	}
	cancel()

	released := h.svc.ReleaseSession(context.WithoutCancel(ctx), session)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	logger.Info("session closed", slog.Int("released", released))
}

func (h *SessionHandler) handle(ctx context.Context, session string, data []byte) rpc.Response {
	var req rpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return rpc.NewError(0, fmt.Errorf("malformed frame: %w: %w", pkgerrors.ErrInvalidParams, err))
	}

	result, err := h.dispatch(ctx, session, req)
	if err != nil {
		h.logger.Debug("rpc failed",
			slog.String("session", session),
			slog.String("method", req.Method),
			slog.Any("error", err))

		return rpc.NewError(req.ID, err)
	}

	resp, err := rpc.NewResult(req.ID, result)
	if err != nil {
		return rpc.NewError(req.ID, err)
	}

	return resp
}

func (h *SessionHandler) dispatch(ctx context.Context, session string, req rpc.Request) (any, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch req.Method {
	case rpc.MethodRegister:
		var p rpc.RegisterParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		handle, err := h.svc.RegisterConfig(ctx, session, p.Config)
		if err != nil {
			return nil, err
		}

		return rpc.RegisterResult{Handle: handle}, nil

	case rpc.MethodFit:
		var p rpc.FitParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		res, err := h.svc.Fit(ctx, p.Handle, p.DatasetKey)
		if err != nil {
			return nil, err
		}

		return rpc.FitResult{Loss: res.Loss, Batches: res.Batches, Samples: res.Samples}, nil

	case rpc.MethodModel:
		var p rpc.HandleParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		data, err := h.svc.Model(ctx, p.Handle)
		if err != nil {
			return nil, err
		}

		return rpc.ModelResult{Model: data}, nil

	case rpc.MethodRelease:
		var p rpc.HandleParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, err
		}
		if err := h.svc.Release(ctx, p.Handle); err != nil {
			return nil, err
		}

		return rpc.ReleaseResult{Released: true}, nil

	case rpc.MethodDatasets:
		return rpc.DatasetsResult{WorkerID: h.svc.ID(), Datasets: h.svc.Datasets(ctx)}, nil

	default:
		return nil, fmt.Errorf("rpc request: unknown method '%s': %w", req.Method, pkgerrors.ErrUnknownMethod)
	}
}
