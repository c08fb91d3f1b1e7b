package freestyle

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
)

// The master keys below are the placeholder sentinel the original driver
// carries (0xdeadbeef, expanded into the low 8 bytes of a 16-byte Speck
// key). They cannot interoperate with a real encrypted-profile meter; a
// deployment needs to substitute the real, reverse-engineered constants
// out-of-band. See spec.md §9.
var (
	authEncMasterKey = sentinelMasterKey(0xdeadbeef)
	authMacMasterKey = sentinelMasterKey(0xdeadbeef)
	sessEncMasterKey = sentinelMasterKey(0xdeadbeef)
	sessMacMasterKey = sentinelMasterKey(0xdeadbeef)
)

func sentinelMasterKey(v uint64) [16]byte {
	var key [16]byte
	for i := 0; i < 8; i++ {
		key[15-i] = byte(v >> (8 * i))
	}
	return key
}

var (
	labelAuthEnc = [8]byte{'A', 'u', 't', 'h', 'r', 'E', 'n', 'c'}
	labelAuthMAC = [8]byte{'A', 'u', 't', 'h', 'r', 'M', 'A', 'C'}
	labelSessEnc = [8]byte{'S', 'e', 's', 's', 'n', 'E', 'n', 'c'}
	labelSessMAC = [8]byte{'S', 'e', 's', 's', 'n', 'M', 'A', 'C'}
)

// handshake performs the mutual-authentication challenge-response exchange
// of spec.md §4.5.1 and installs s.keys on success.
func (s *Session) handshake() error {
	if err := s.SendCommand(msgSerialRequest, nil); err != nil {
		return &HandshakeError{Step: "serial", Cause: err}
	}
	msgType, payload, err := s.ReadResponse()
	if err != nil {
		return &HandshakeError{Step: "serial", Cause: err}
	}
	if msgType != msgSerialReply || len(payload) < 13 {
		return &HandshakeError{Step: "serial", Cause: errUnexpectedHandshakeReply(msgType, payload)}
	}
	serial := append([]byte{}, payload[:13]...)

	authEncCMAC := NewSpeckCMAC(authEncMasterKey)
	authEncKey := authEncCMAC.Derive(labelAuthEnc, serial)
	authEnc := NewSpeckEncrypt(authEncKey)

	authMacCMAC := NewSpeckCMAC(authMacMasterKey)
	authMacKey := authMacCMAC.Derive(labelAuthMAC, serial)
	authMac := NewSpeckCMAC(authMacKey)

	if err := s.SendCommand(msgEncryptionSetup, []byte{0x11}); err != nil {
		return &HandshakeError{Step: "challenge", Cause: err}
	}
	msgType, payload, err = s.ReadResponse()
	if err != nil {
		return &HandshakeError{Step: "challenge", Cause: err}
	}
	if msgType != msgEncryptionResult || len(payload) < 16 || payload[0] != 0x16 {
		return &HandshakeError{Step: "challenge", Cause: errUnexpectedHandshakeReply(msgType, payload)}
	}
	readerRand := append([]byte{}, payload[1:9]...)
	iv := beUint56(payload[9:16])

	driverRand := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, driverRand); err != nil {
		return &HandshakeError{Step: "response", Cause: err}
	}

	respEnc := authEnc.Encrypt(iv, append(append([]byte{}, readerRand...), driverRand...))

	macInput := append([]byte{0x14, 0x1a, 0x17}, respEnc...)
	macInput = append(macInput, 0x01)
	respMacTag := authMac.Sign(macInput)

	cmd := append([]byte{0x17}, respEnc...)
	cmd = append(cmd, 0x01)
	cmd = append(cmd, respMacTag[:]...)
	if err := s.SendCommand(msgEncryptionSetup, cmd); err != nil {
		return &HandshakeError{Step: "response", Cause: err}
	}
	msgType, payload, err = s.ReadResponse()
	if err != nil {
		return &HandshakeError{Step: "response", Cause: err}
	}
	if msgType != msgEncryptionResult || len(payload) < 32 || payload[0] != 0x18 {
		return &HandshakeError{Step: "response", Cause: errUnexpectedHandshakeReply(msgType, payload)}
	}

	verifyMacTag := authMac.Sign(append([]byte{0x33, 0x22}, payload[0:24]...))
	if !bytes.Equal(verifyMacTag[:], payload[24:32]) {
		return &HandshakeError{Step: "verify", Cause: errors.New("server MAC mismatch")}
	}

	iv2 := beUint56(payload[17:24])
	resp := authEnc.Decrypt(iv2, payload[1:17])
	if !bytes.Equal(resp[0:8], driverRand) || !bytes.Equal(resp[8:16], readerRand) {
		return &HandshakeError{Step: "verify", Cause: errors.New("challenge round-trip mismatch")}
	}

	sessEncCMAC := NewSpeckCMAC(sessEncMasterKey)
	sessMacCMAC := NewSpeckCMAC(sessMacMasterKey)
	context := append(append(append([]byte{}, serial...), readerRand...), driverRand...)

	keys := &sessionKeys{
		enc: sessEncCMAC.Derive(labelSessEnc, context),
		mac: sessMacCMAC.Derive(labelSessMAC, context),
	}
	s.keys = keys

	slog.Debug("freestyle: handshake complete",
		"serial", hex.EncodeToString(serial),
		"reader_rand", hex.EncodeToString(readerRand))
	return nil
}

// beUint56 decodes a 56-bit (7-byte) big-endian unsigned integer, the IV
// counter width used inside the handshake challenge/response payloads.
func beUint56(b []byte) uint64 {
	var v uint64
	for _, c := range b[:7] {
		v = v<<8 | uint64(c)
	}
	return v
}

func errUnexpectedHandshakeReply(msgType byte, payload []byte) error {
	return &UnexpectedMessageTypeError{Got: msgType, Payload: payload}
}
