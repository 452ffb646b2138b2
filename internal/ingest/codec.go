package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gridalert/internal/domain"
)

// decodeObservationPayload auto-detects batch vs single payload.
// Params: raw JSON bytes with one object or one array.
// Returns: validated observation slice.
func decodeObservationPayload(raw []byte) ([]domain.Observation, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	if payload[0] == '[' {
		observations, err := domain.DecodeObservationsReader(decoder)
		if err != nil {
			return nil, err
		}
		if err := ensureJSONEOF(decoder); err != nil {
			return nil, err
		}
		return observations, nil
	}

	observation, err := domain.DecodeObservationReader(decoder)
	if err != nil {
		return nil, err
	}
	if err := ensureJSONEOF(decoder); err != nil {
		return nil, err
	}
	return []domain.Observation{observation}, nil
}

// ensureJSONEOF rejects trailing tokens after a decoded JSON payload.
// Params: decoder positioned after primary decode.
// Returns: nil on EOF or error on trailing tokens.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}
