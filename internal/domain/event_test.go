package domain

import (
	"strings"
	"testing"
	"time"
)

func TestCountEventSerializesZeroCount(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	body, err := CountEvent(EventAlertAcknowledged, 0, at).Encode()
	if err != nil {
		t.Fatalf("encode count event: %v", err)
	}
	// count=0 must survive serialization so clients can clear their badge.
	if !strings.Contains(string(body), `"count":0`) {
		t.Fatalf("expected count field in payload: %s", body)
	}
	if !strings.Contains(string(body), `"type":"ALERT_ACKNOWLEDGED"`) {
		t.Fatalf("unexpected payload: %s", body)
	}
}

func TestConnectedEventOmitsCount(t *testing.T) {
	t.Parallel()

	body, err := ConnectedEvent().Encode()
	if err != nil {
		t.Fatalf("encode connected event: %v", err)
	}
	if strings.Contains(string(body), "count") {
		t.Fatalf("connected event must not carry a count: %s", body)
	}
	if !strings.Contains(string(body), `"type":"CONNECTED"`) {
		t.Fatalf("unexpected payload: %s", body)
	}
}

func TestDecodeEventKeepsUnknownTypes(t *testing.T) {
	t.Parallel()

	event, err := DecodeEvent([]byte(`{"type":"FUTURE_THING","count":7}`))
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != "FUTURE_THING" {
		t.Fatalf("unexpected type: %q", event.Type)
	}
	if event.Count == nil || *event.Count != 7 {
		t.Fatalf("unexpected count: %+v", event.Count)
	}
}

func TestAckFlagAcceptsBoolAndNumericSpellings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
	}
	for _, tc := range cases {
		var flag AckFlag
		if err := flag.UnmarshalJSON([]byte(tc.raw)); err != nil {
			t.Fatalf("unmarshal %q: %v", tc.raw, err)
		}
		if bool(flag) != tc.want {
			t.Fatalf("value %q: expected %v, got %v", tc.raw, tc.want, bool(flag))
		}
	}

	var flag AckFlag
	if err := flag.UnmarshalJSON([]byte(`"yes"`)); err == nil {
		t.Fatalf("expected unsupported spelling to fail")
	}
}
