package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLen bounds the free-text fault description. Oversized input is
// truncated, never rejected: a fault report must not fail on a long message.
const MaxMessageLen = 255

// Observation is one reported instance of a potential problem from a monitored
// source. Pollers re-send it on every cycle whether or not the underlying
// condition is new; deduplication happens downstream.
// Params: source identifier, fault kind, and free-text description.
// Returns: validated fault observation for the dedup engine.
type Observation struct {
	SourceID string `json:"source_id"`
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
}

// DecodeObservation decodes and validates one observation payload.
// Params: JSON document bytes.
// Returns: validated observation or decode/validation error.
func DecodeObservation(raw []byte) (Observation, error) {
	var obs Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return Observation{}, fmt.Errorf("decode observation: %w", err)
	}
	if err := obs.Validate(); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

// DecodeObservations decodes and validates one batch of observations.
// Params: JSON array bytes.
// Returns: validated observation slice or decode/validation error.
func DecodeObservations(raw []byte) ([]Observation, error) {
	var batch []Observation
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode observation batch: %w", err)
	}
	if len(batch) == 0 {
		return nil, errors.New("observation batch must contain at least one observation")
	}
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return nil, fmt.Errorf("observation[%d]: %w", i, err)
		}
	}
	return batch, nil
}

// DecodeObservationReader decodes and validates one observation from a decoder.
// Params: JSON decoder positioned at one object.
// Returns: validated observation or decode/validation error.
func DecodeObservationReader(decoder *json.Decoder) (Observation, error) {
	var obs Observation
	if err := decoder.Decode(&obs); err != nil {
		return Observation{}, fmt.Errorf("decode observation: %w", err)
	}
	if err := obs.Validate(); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

// DecodeObservationsReader decodes and validates one batch from a decoder.
// Params: JSON decoder positioned at one array.
// Returns: validated observation slice or decode/validation error.
func DecodeObservationsReader(decoder *json.Decoder) ([]Observation, error) {
	var batch []Observation
	if err := decoder.Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode observation batch: %w", err)
	}
	if len(batch) == 0 {
		return nil, errors.New("observation batch must contain at least one observation")
	}
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return nil, fmt.Errorf("observation[%d]: %w", i, err)
		}
	}
	return batch, nil
}

// Validate checks the observation against the ingest contract.
// Params: fields parsed from transport.
// Returns: validation error when the contract is violated.
func (o Observation) Validate() error {
	if strings.TrimSpace(o.SourceID) == "" {
		return errors.New("source_id is required")
	}
	if strings.TrimSpace(string(o.Kind)) == "" {
		return errors.New("kind is required")
	}
	return nil
}

// TruncatedMessage returns the message bounded to MaxMessageLen bytes.
// Params: none.
// Returns: message, cut at the limit when oversized.
func (o Observation) TruncatedMessage() string {
	if len(o.Message) <= MaxMessageLen {
		return o.Message
	}
	cut := o.Message[:MaxMessageLen]
	// Do not leave a broken UTF-8 sequence at the cut point: drop a rune the
	// cut split in half, keep a rune that ends exactly at the limit.
	for i := len(cut) - 1; i >= 0 && i >= len(cut)-utf8.UTFMax; i-- {
		if utf8.RuneStart(cut[i]) {
			if r, size := utf8.DecodeRuneInString(cut[i:]); r == utf8.RuneError && size == 1 {
				cut = cut[:i]
			}
			break
		}
	}
	return cut
}
