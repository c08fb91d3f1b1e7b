package freestyle

import "encoding/binary"

// sentinelOutboundIV is the device's quirky stand-in for IV=0 on the
// outbound encryption path (spec.md §9: "Sentinel IV 0xFF"). Do not "fix"
// this; it is required for interoperability, not a bug.
const sentinelOutboundIV = 0xFF

// protectFrame implements spec.md §4.4 Protect: given a cleartext 65-byte
// frame, encrypts bytes [2:57), zeroes the IV counter field [57:61), and
// writes a truncated CMAC tag into [61:65).
func protectFrame(keys sessionKeys, frame []byte) []byte {
	out := make([]byte, len(frame))
	copy(out, frame)

	enc := NewSpeckEncrypt(keys.enc)
	ciphertext := enc.Encrypt(sentinelOutboundIV, frame[2:57])
	copy(out[2:57], ciphertext)

	for i := 57; i < 61; i++ {
		out[i] = 0
	}

	mac := NewSpeckCMAC(keys.mac)
	tag := mac.Sign(out[1:61])
	copy(out[61:65], tag[4:8])
	return out
}

// unprotectFrame implements spec.md §4.4 Unprotect: verifies the truncated
// CMAC over [0:60), derives the device-supplied IV from [56:60), and
// decrypts bytes [1:56) in place.
func unprotectFrame(keys sessionKeys, frame []byte) ([]byte, error) {
	mac := NewSpeckCMAC(keys.mac)
	tag := mac.Sign(frame[0:60])
	if tag[4] != frame[60] || tag[5] != frame[61] || tag[6] != frame[62] || tag[7] != frame[63] {
		return nil, &IntegrityError{}
	}

	out := make([]byte, len(frame))
	copy(out, frame)

	ivCounter := binary.BigEndian.Uint32(frame[56:60])
	iv := uint64(ivCounter) << 8

	enc := NewSpeckEncrypt(keys.enc)
	plaintext := enc.Decrypt(iv, frame[1:56])
	copy(out[1:56], plaintext)
	return out, nil
}
