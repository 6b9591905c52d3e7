package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	payload := map[string]string{"id": "m1", "content": "hello"}

	data, err := Encode(TypeMessage, "conv-1", payload, ts)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.EventType != TypeMessage {
		t.Errorf("event_type: got %q, want %q", f.EventType, TypeMessage)
	}
	if f.ConversationID != "conv-1" {
		t.Errorf("conversation_id: got %q, want conv-1", f.ConversationID)
	}
	if !f.ServerTimestamp.Equal(ts) {
		t.Errorf("server_timestamp: got %v, want %v", f.ServerTimestamp, ts)
	}
	var got map[string]string
	if err := json.Unmarshal(f.Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got["content"] != "hello" {
		t.Errorf("payload content: got %q, want hello", got["content"])
	}
}

func TestParseAllTypes(t *testing.T) {
	for _, et := range []string{TypeMessage, TypeSystem, TypeConnect, TypeStatus} {
		data, err := Encode(et, "conv-1", nil, time.Now())
		if err != nil {
			t.Fatalf("encode %s: %v", et, err)
		}
		f, err := Parse(data)
		if err != nil {
			t.Fatalf("parse %s: %v", et, err)
		}
		if f.EventType != et {
			t.Errorf("event_type mismatch: got %q, want %q", f.EventType, et)
		}
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	cases := []struct {
		name string
		data string
		want error
	}{
		{"unknown type", `{"event_type":"presence","conversation_id":"c","server_timestamp":"` + now + `"}`, ErrUnknownEventType},
		{"ping is outbound only", `{"event_type":"ping","conversation_id":"c","server_timestamp":"` + now + `"}`, ErrUnknownEventType},
		{"missing conversation", `{"event_type":"message","server_timestamp":"` + now + `"}`, ErrMissingConversation},
		{"bad timestamp", `{"event_type":"message","conversation_id":"c","server_timestamp":"yesterday"}`, ErrBadTimestamp},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.data))
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"event_type":`))
	if err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestOversizedPayload(t *testing.T) {
	big := `"` + strings.Repeat("x", MaxPayloadLen+1) + `"`
	data := `{"event_type":"message","conversation_id":"c","payload":` + big +
		`,"server_timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`
	_, err := Parse([]byte(data))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestPing(t *testing.T) {
	data := Ping("conv-1", time.Now())
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("ping not valid JSON: %v", err)
	}
	if env["event_type"] != TypePing {
		t.Errorf("event_type: got %v, want %q", env["event_type"], TypePing)
	}
	if env["conversation_id"] != "conv-1" {
		t.Errorf("conversation_id: got %v, want conv-1", env["conversation_id"])
	}
}

func TestCompressRoundTrip(t *testing.T) {
	big := bytes.Repeat([]byte(`{"content":"aaaaaaaaaaaaaaaa"}`), 200)

	compressed, ok := Compress(big)
	if !ok {
		t.Fatal("expected compression for repetitive payload above threshold")
	}
	if len(compressed) >= len(big) {
		t.Fatalf("compressed not smaller: %d >= %d", len(compressed), len(big))
	}

	out, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, big) {
		t.Error("round trip mismatch")
	}
}

func TestCompressSmallPayloadUntouched(t *testing.T) {
	small := []byte(`{"content":"hi"}`)
	out, ok := Compress(small)
	if ok {
		t.Error("small payload should not be compressed")
	}
	if !bytes.Equal(out, small) {
		t.Error("small payload modified")
	}
}
