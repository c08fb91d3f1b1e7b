package freestyle

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, msgType := range []byte{0x00, 0x01, 0x22, 0x7F, 0xFF} {
		for _, n := range []int{0, 1, 31, 62} {
			payload := make([]byte, n)
			for i := range payload {
				payload[i] = byte(i)
			}
			frame, err := encodeFrame(msgType, payload)
			if err != nil {
				t.Fatalf("encodeFrame(%d bytes) returned error: %v", n, err)
			}
			if len(frame) != frameSize {
				t.Fatalf("expected frame of %d bytes, got %d", frameSize, len(frame))
			}
			gotType, gotPayload, err := decodeFrame(frame)
			if err != nil {
				t.Fatalf("decodeFrame returned error: %v", err)
			}
			if gotType != msgType {
				t.Fatalf("expected type %#02x, got %#02x", msgType, gotType)
			}
			if !bytes.Equal(gotPayload, payload) {
				t.Fatalf("expected payload %x, got %x", payload, gotPayload)
			}
		}
	}
}

func TestEncodeFrameRejectsOversizePayload(t *testing.T) {
	if _, err := encodeFrame(0x01, make([]byte, 63)); err == nil {
		t.Fatalf("expected error for 63-byte payload")
	}
	if _, err := encodeFrame(0x01, make([]byte, 62)); err != nil {
		t.Fatalf("62-byte payload should be accepted, got error: %v", err)
	}
}

func TestDecodeFrameRejectsTruncatedFrame(t *testing.T) {
	if _, _, err := decodeFrame([]byte{0x00, 0x01}); err == nil {
		t.Fatalf("expected error for 2-byte frame")
	}
}

func TestDecodeFrameRejectsOverstatedLength(t *testing.T) {
	frame := make([]byte, frameSize)
	frame[1] = 0x01
	frame[2] = 62
	if _, _, err := decodeFrame(frame[:10]); err == nil {
		t.Fatalf("expected error when declared length exceeds buffer")
	}
}
