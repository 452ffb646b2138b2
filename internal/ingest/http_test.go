package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gridalert/internal/domain"
	"gridalert/internal/engine"
)

type httpTestSink struct {
	raised []domain.Observation
	err    error
}

func (s *httpTestSink) Raise(_ context.Context, obs domain.Observation) (engine.RaiseResult, error) {
	if s.err != nil {
		return engine.RaiseResult{}, s.err
	}
	s.raised = append(s.raised, obs)
	return engine.RaiseResult{Created: true}, nil
}

func testObservationJSON(source string) string {
	return fmt.Sprintf(`{"source_id":"%s","kind":"comm_failure","message":"no response"}`, source)
}

func TestHTTPHandlerAcceptsSingleObservation(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{}
	handler := NewHTTPHandler(sink, 1<<20)
	request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(testObservationJSON("Q1")))
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, response.Code)
	}
	if len(sink.raised) != 1 || sink.raised[0].SourceID != "Q1" {
		t.Fatalf("unexpected sink calls: %+v", sink.raised)
	}
}

func TestHTTPHandlerAcceptsObservationBatch(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{}
	handler := NewHTTPHandler(sink, 1<<20)
	payload := fmt.Sprintf("[%s,%s]", testObservationJSON("Q1"), testObservationJSON("Q2"))
	request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(payload))
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, response.Code)
	}
	if len(sink.raised) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(sink.raised))
	}
}

func TestHTTPHandlerRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
	}{
		{"empty batch", "[]"},
		{"missing source", `{"kind":"trip"}`},
		{"malformed json", "{"},
		{"trailing tokens", testObservationJSON("Q1") + "{}"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sink := &httpTestSink{}
			handler := NewHTTPHandler(sink, 1<<20)
			request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(tc.payload))
			response := httptest.NewRecorder()

			handler.ServeHTTP(response, request)
			if response.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, response.Code)
			}
			if len(sink.raised) != 0 {
				t.Fatalf("invalid payload must not reach the sink")
			}
		})
	}
}

func TestHTTPHandlerMapsTaxonomyRejectionToBadRequest(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{err: fmt.Errorf("%w: %q", engine.ErrUnknownKind, "bogus")}
	handler := NewHTTPHandler(sink, 1<<20)
	request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(testObservationJSON("Q1")))
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, response.Code)
	}
}

func TestHTTPHandlerMapsStoreFailureToServiceUnavailable(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{err: errors.New("store down")}
	handler := NewHTTPHandler(sink, 1<<20)
	request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(testObservationJSON("Q1")))
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, response.Code)
	}
}

func TestHTTPHandlerRejectsNonPost(t *testing.T) {
	t.Parallel()

	handler := NewHTTPHandler(&httpTestSink{}, 1<<20)
	request := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, response.Code)
	}
}
