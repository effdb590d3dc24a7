package message

import (
	"testing"
)

func TestLoginRequestRoundTrip(t *testing.T) {
	req := LoginRequest{
		Username:                "test1",
		Password:                "password",
		RequestedSession:        "",
		RequestedSequenceNumber: 0,
	}
	frame := req.Encode()
	if len(frame) != loginRequestLen {
		t.Fatalf("expected frame length %d, got %d", loginRequestLen, len(frame))
	}

	decoded, err := DecodeLoginRequest(frame[3:])
	if err != nil {
		t.Fatalf("DecodeLoginRequest failed: %v", err)
	}
	if decoded.Username != req.Username {
		t.Errorf("Username mismatch: got %q, want %q", decoded.Username, req.Username)
	}
	if decoded.Password != req.Password {
		t.Errorf("Password mismatch: got %q, want %q", decoded.Password, req.Password)
	}
	if decoded.RequestedSession != "" {
		t.Errorf("expected blank session, got %q", decoded.RequestedSession)
	}
	if decoded.RequestedSequenceNumber != 0 {
		t.Errorf("expected sequence 0, got %d", decoded.RequestedSequenceNumber)
	}
}

func TestLoginRequestWithResume(t *testing.T) {
	req := LoginRequest{
		Username:                "test1",
		Password:                "password",
		RequestedSession:        "ABC",
		RequestedSequenceNumber: 2,
	}
	decoded, err := DecodeLoginRequest(req.Encode()[3:])
	if err != nil {
		t.Fatalf("DecodeLoginRequest failed: %v", err)
	}
	if decoded.RequestedSession != "ABC" {
		t.Errorf("RequestedSession mismatch: got %q", decoded.RequestedSession)
	}
	if decoded.RequestedSequenceNumber != 2 {
		t.Errorf("RequestedSequenceNumber mismatch: got %d", decoded.RequestedSequenceNumber)
	}
}

func TestLoginAcceptedRoundTrip(t *testing.T) {
	acc := LoginAccepted{Session: "ABCDEFGHIJ", SequenceNumber: 42}
	decoded, err := DecodeLoginAccepted(acc.Encode()[3:])
	if err != nil {
		t.Fatalf("DecodeLoginAccepted failed: %v", err)
	}
	if decoded.Session != acc.Session {
		t.Errorf("Session mismatch: got %q, want %q", decoded.Session, acc.Session)
	}
	if decoded.SequenceNumber != 42 {
		t.Errorf("SequenceNumber mismatch: got %d", decoded.SequenceNumber)
	}
}

func TestLoginRejectedReasons(t *testing.T) {
	for _, reason := range []string{RejectAuth, RejectSessionUnavailable} {
		rej := LoginRejected{Reason: reason}
		decoded, err := DecodeLoginRejected(rej.Encode()[3:])
		if err != nil {
			t.Fatalf("DecodeLoginRejected failed: %v", err)
		}
		if decoded.Reason != reason {
			t.Errorf("Reason mismatch: got %q, want %q", decoded.Reason, reason)
		}
	}
}

func TestGetAlphaPreservesEmbeddedSpaces(t *testing.T) {
	frame := make([]byte, 20)
	SetAlpha(frame, 3, 10, "ab cd")
	if got := GetAlpha(frame, 3, 10); got != "ab cd" {
		t.Errorf("expected embedded space preserved, got %q", got)
	}
}

func TestSetNumericOverflow(t *testing.T) {
	frame := make([]byte, 10)
	err := SetNumeric(frame, 0, 3, 123456)
	if err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestGetNumericParseError(t *testing.T) {
	frame := []byte("  12x4")
	if _, err := GetNumeric(frame, 0, 6); err == nil {
		t.Fatal("expected parse error for non-digit numeric field")
	}
}

func TestGetNumericAllSpacesIsZero(t *testing.T) {
	frame := []byte("          ")
	n, err := GetNumeric(frame, 0, len(frame))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}
