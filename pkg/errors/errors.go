package errors

import "errors"

var (
	ErrInvalidConfig   = errors.New("invalid train config")
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrHandleNotFound  = errors.New("train config handle not found")
	ErrShapeMismatch   = errors.New("dataset shape does not match model")
	ErrWorkerMismatch  = errors.New("worker id mismatch")
	ErrUnknownMethod   = errors.New("unknown method")
	ErrInvalidParams   = errors.New("invalid request params")
	ErrDiverged        = errors.New("training diverged")
	ErrInvalidData     = errors.New("invalid data type")
	ErrRemote          = errors.New("remote worker error")
)

var codes = map[string]error{
	"invalid_config":    ErrInvalidConfig,
	"dataset_not_found": ErrDatasetNotFound,
	"handle_not_found":  ErrHandleNotFound,
	"shape_mismatch":    ErrShapeMismatch,
	"worker_mismatch":   ErrWorkerMismatch,
	"unknown_method":    ErrUnknownMethod,
	"invalid_params":    ErrInvalidParams,
	"diverged":          ErrDiverged,
}

// Code returns the wire code of the first sentinel err wraps, or "internal".
func Code(err error) string {
	for code, sentinel := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return "internal"
}

// FromCode maps a wire code back to its sentinel. Unknown codes map to ErrRemote.
func FromCode(code string) error {
	if err, ok := codes[code]; ok {
		return err
	}

	return ErrRemote
}
