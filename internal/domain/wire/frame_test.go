package wire_test

import (
	"testing"

	"github.com/solconnect/messaging-core/internal/domain/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	chat := wire.Chat{
		MessageID:   "msg_1",
		SessionID:   "sess_1",
		Sender:      "alice",
		Recipient:   "bob",
		ContentType: 1,
		Ciphertext:  []byte("ct"),
		CreatedAt:   1000,
		VectorClock: map[string]uint64{"alice-phone": 1},
	}

	f, err := wire.Encode(wire.TypeChat, chat)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if f.Version != wire.ProtocolVersion {
		t.Fatalf("unexpected version %d", f.Version)
	}

	var out wire.Chat
	if err := wire.Decode(f, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.MessageID != chat.MessageID || out.SessionID != chat.SessionID {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	f := wire.Frame{Version: wire.ProtocolVersion, Type: "bogus", Payload: []byte("{}")}
	err := wire.Validate(f)
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	var pe *wire.ProtocolError
	if !asProtocolError(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
	if pe.Kind != wire.UnknownType {
		t.Fatalf("expected UnknownType, got %v", pe.Kind)
	}
}

func TestValidateRejectsVersionMismatch(t *testing.T) {
	f := wire.Frame{Version: 99, Type: wire.TypePing, Payload: []byte("{}")}
	err := wire.Validate(f)
	var pe *wire.ProtocolError
	if !asProtocolError(err, &pe) || pe.Kind != wire.VersionMismatch {
		t.Fatalf("expected VersionMismatch, got %v", err)
	}
}

func TestValidateRejectsNilPayload(t *testing.T) {
	f := wire.Frame{Version: wire.ProtocolVersion, Type: wire.TypePing}
	err := wire.Validate(f)
	var pe *wire.ProtocolError
	if !asProtocolError(err, &pe) || pe.Kind != wire.MalformedFrame {
		t.Fatalf("expected MalformedFrame, got %v", err)
	}
}

func asProtocolError(err error, target **wire.ProtocolError) bool {
	pe, ok := err.(*wire.ProtocolError)
	if ok {
		*target = pe
	}
	return ok
}
