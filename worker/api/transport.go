package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/worker"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const contentType = "application/json"

// MakeHandler serves the worker's HTTP API and the coordinator websocket on
// /ws, reading frames of at most maxFrameSize bytes. The websocket route is
// not wrapped by otelhttp since the hijacked connection outlives the request
// span.
func MakeHandler(svc worker.Service, maxFrameSize int64, logger *slog.Logger) http.Handler {
	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(encodeError),
	}

	mux := chi.NewRouter()

	mux.Get("/health", otelhttp.NewHandler(kithttp.NewServer(
		MakeHealthEndpoint(svc),
		decodeEmptyRequest,
		encodeResponse,
		opts...,
	), "health").ServeHTTP)

	mux.Get("/stats", otelhttp.NewHandler(kithttp.NewServer(
		MakeStatsEndpoint(svc),
		decodeEmptyRequest,
		encodeResponse,
		opts...,
	), "stats").ServeHTTP)

	mux.Get("/datasets", otelhttp.NewHandler(kithttp.NewServer(
		MakeDatasetsEndpoint(svc),
		decodeEmptyRequest,
		encodeResponse,
		opts...,
	), "datasets").ServeHTTP)

	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/ws", NewSessionHandler(svc, maxFrameSize, logger).ServeHTTP)

	return mux
}

func decodeEmptyRequest(_ context.Context, _ *http.Request) (any, error) {
	return struct{}{}, nil
}

func encodeResponse(_ context.Context, w http.ResponseWriter, resp any) error {
	w.Header().Set("Content-Type", contentType)
	if ar, ok := resp.(response); ok {
		w.WriteHeader(ar.Code())
	}

	return json.NewEncoder(w).Encode(resp)
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", contentType)

	switch {
	case errors.Is(err, pkgerrors.ErrHandleNotFound),
		errors.Is(err, pkgerrors.ErrDatasetNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, pkgerrors.ErrWorkerMismatch):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, pkgerrors.ErrInvalidParams),
		errors.Is(err, pkgerrors.ErrInvalidConfig),
		errors.Is(err, pkgerrors.ErrUnknownMethod):
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	_ = json.NewEncoder(w).Encode(errorRes{Error: err.Error(), Code: pkgerrors.Code(err)})
}
