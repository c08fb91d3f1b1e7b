package freestyle

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func testKeys() sessionKeys {
	var keys sessionKeys
	copy(keys.enc[:], []byte("ENCRYPTIONKEY123"))
	copy(keys.mac[:], []byte("MACKEY1234567890"))
	return keys
}

// buildInboundFrame is the inverse of Protect for the "inbound" MAC
// coverage (§4.4): it encrypts [1:56), stamps the given 32-bit IV counter
// at [56:60), and signs [0:60) rather than [1:61) — modeling what a device
// reply looks like on the wire, for testing Unprotect in isolation.
func buildInboundFrame(keys sessionKeys, cleartext []byte, ivCounter uint32) []byte {
	frame := make([]byte, frameSize)
	copy(frame, cleartext)

	enc := NewSpeckEncrypt(keys.enc)
	iv := uint64(ivCounter) << 8
	ciphertext := enc.Encrypt(iv, frame[1:56])
	copy(frame[1:56], ciphertext)
	binary.BigEndian.PutUint32(frame[56:60], ivCounter)

	mac := NewSpeckCMAC(keys.mac)
	tag := mac.Sign(frame[0:60])
	copy(frame[60:64], tag[4:8])
	return frame
}

func TestProtectUnprotectRoundTrip(t *testing.T) {
	keys := testKeys()

	cleartext, err := encodeFrame(0x60, []byte("hello, meter"))
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}

	inbound := buildInboundFrame(keys, cleartext, 0x00ABCDEF)
	decoded, err := unprotectFrame(keys, inbound)
	if err != nil {
		t.Fatalf("unprotectFrame returned error: %v", err)
	}

	msgType, payload, err := decodeFrame(decoded)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if msgType != 0x60 {
		t.Fatalf("expected type 0x60, got %#02x", msgType)
	}
	if string(payload) != "hello, meter" {
		t.Fatalf("expected payload %q, got %q", "hello, meter", payload)
	}
}

func TestUnprotectDetectsBitFlip(t *testing.T) {
	keys := testKeys()
	cleartext, _ := encodeFrame(0x60, []byte("integrity check"))
	inbound := buildInboundFrame(keys, cleartext, 1)

	for _, byteIdx := range []int{0, 1, 30, 59} {
		corrupted := append([]byte{}, inbound...)
		corrupted[byteIdx] ^= 0x01
		if _, err := unprotectFrame(keys, corrupted); err == nil {
			t.Fatalf("expected IntegrityError after flipping bit in byte %d", byteIdx)
		} else if _, ok := err.(*IntegrityError); !ok {
			t.Fatalf("expected *IntegrityError, got %T: %v", err, err)
		}
	}
}

func TestProtectFrameLeavesExemptBytesInPlace(t *testing.T) {
	keys := testKeys()
	frame, _ := encodeFrame(0x60, []byte("payload"))
	out := protectFrame(keys, frame)

	if out[0] != frame[0] {
		t.Fatalf("report id byte should be untouched by Protect")
	}
	if out[1] != frame[1] {
		t.Fatalf("message type byte should be untouched by Protect")
	}
	for i := 57; i < 61; i++ {
		if out[i] != 0 {
			t.Fatalf("IV counter field byte %d should be zeroed outbound, got %d", i, out[i])
		}
	}
	if bytes.Equal(out[2:57], frame[2:57]) {
		t.Fatalf("Protect should have encrypted bytes [2:57)")
	}
}
