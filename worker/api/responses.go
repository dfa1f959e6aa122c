package api

import (
	"net/http"

	"github.com/absmach/fltrain/pkg/rpc"
	"github.com/absmach/fltrain/worker"
)

const statusOK = "ok"

type response interface {
	Code() int
}

var (
	_ response = (*healthRes)(nil)
	_ response = (*statsRes)(nil)
	_ response = (*datasetsRes)(nil)
)

type healthRes struct {
	Status   string `json:"status"`
	WorkerID string `json:"worker_id"`
}

func (res healthRes) Code() int {
	return http.StatusOK
}

type statsRes struct {
	worker.Stats
}

func (res statsRes) Code() int {
	return http.StatusOK
}

type datasetsRes struct {
	rpc.DatasetsResult
}

func (res datasetsRes) Code() int {
	return http.StatusOK
}

// errorRes mirrors the error half of an rpc.Response so clients can map the
// code back onto a sentinel.
type errorRes struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
