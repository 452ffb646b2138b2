package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"

	"gridalert/internal/domain"
	"gridalert/internal/engine"
)

// ObservationSink receives decoded fault observations from ingest interfaces.
// Params: context and validated observation.
// Returns: raise outcome or processing error.
type ObservationSink interface {
	Raise(ctx context.Context, obs domain.Observation) (engine.RaiseResult, error)
}

// HTTPHandler decodes JSON fault observations and forwards them to the sink.
// One endpoint takes both a single object and an array batch.
// Params: sink receives validated observations, max body limits payload size.
// Returns: HTTP handler for the ingest endpoint.
type HTTPHandler struct {
	sink        ObservationSink
	maxBodySize int64
}

// NewHTTPHandler creates the ingest HTTP handler.
// Params: sink and max request body size in bytes.
// Returns: configured handler.
func NewHTTPHandler(sink ObservationSink, maxBodySize int64) *HTTPHandler {
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize}
}

// ServeHTTP handles one incoming observation request.
// Params: HTTP request/response writer pair.
// Returns: writes status code according to decode/raise result.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	observations, err := decodeObservationPayload(body)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, observation := range observations {
		if _, err := h.sink.Raise(request.Context(), observation); err != nil {
			writer.WriteHeader(raiseStatus(err))
			return
		}
	}
	writer.WriteHeader(http.StatusAccepted)
}

// raiseStatus maps a raise error to an HTTP status. Taxonomy rejections are
// caller mistakes; everything else is a backend failure the caller should
// retry against.
// Params: error from the observation sink.
// Returns: HTTP status code.
func raiseStatus(err error) int {
	if errors.Is(err, engine.ErrUnknownKind) || errors.Is(err, engine.ErrUnknownSource) {
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}
