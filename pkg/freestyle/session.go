package freestyle

import (
	"encoding/hex"
	"log/slog"
)

// encryptedProductID is the product id of the newer FreeStyle meter variant
// that requires the authenticated-session protocol.
const encryptedProductID = 0x3950

const (
	msgInit             = 0x01
	msgInitAck          = 0x71
	msgKeepAlive        = 0x22
	msgUnknown          = 0x30
	msgSerialRequest    = 0x05
	msgSerialReply      = 0x06
	msgEncryptionSetup  = 0x14
	msgEncryptionResult = 0x33
)

// alwaysUnencrypted is the set of message types that bypass record
// protection even on an encrypted-profile session (spec.md §3).
var alwaysUnencrypted = map[byte]bool{
	0x01: true,
	0x04: true,
	0x05: true,
	0x06: true,
	0x0C: true,
	0x0D: true,
	0x14: true,
	0x15: true,
	0x33: true,
	0x34: true,
	0x35: true,
	0x71: true,
	0x22: true,
}

// sessionKeys holds the pair of 128-bit keys installed by a successful
// handshake. Zeroed on Close as defense in depth.
type sessionKeys struct {
	enc [16]byte
	mac [16]byte
}

// Session is the stateful protocol engine described in spec.md §3: it owns
// a Device exclusively, frames and (when required) encrypts/decrypts
// traffic, filters keep-alives, and classifies error frames.
type Session struct {
	device Device

	textTypeOut byte
	textTypeIn  byte
	encoding    string

	encryptedProfile bool
	keys             *sessionKeys
}

// NewSession constructs a Session bound to an already-open Device. The
// caller chooses textTypeOut/textTypeIn (the message types used for
// outbound text commands and their replies) and the text encoding used to
// decode validated payloads.
func NewSession(device Device, productID *uint16, textTypeOut, textTypeIn byte, encoding string) *Session {
	encrypted := productID != nil && *productID == encryptedProductID
	return &Session{
		device:           device,
		textTypeOut:      textTypeOut,
		textTypeIn:       textTypeIn,
		encoding:         encoding,
		encryptedProfile: encrypted,
	}
}

// Close releases the transport and zeroizes any installed session keys.
func (s *Session) Close() error {
	if s.keys != nil {
		for i := range s.keys.enc {
			s.keys.enc[i] = 0
		}
		for i := range s.keys.mac {
			s.keys.mac[i] = 0
		}
		s.keys = nil
	}
	return s.device.Close()
}

// Connect performs the handshake (for encrypted-profile devices) followed
// by the init exchange, per spec.md §4.5.
func (s *Session) Connect() error {
	if s.encryptedProfile {
		if err := s.handshake(); err != nil {
			return err
		}
	}

	if err := s.SendCommand(msgInit, nil); err != nil {
		return err
	}
	msgType, payload, err := s.ReadResponse()
	if err != nil {
		return err
	}
	if msgType != msgInitAck || len(payload) != 1 || payload[0] != 0x01 {
		return &ConnectionError{MessageType: msgType, Payload: payload}
	}
	return nil
}

// SendCommand encodes and transmits a raw command. It does not wait for a
// reply. Messages in the always-unencrypted set bypass record protection
// even when the session is an authenticated encrypted-profile session.
func (s *Session) SendCommand(msgType byte, payload []byte) error {
	frame, err := encodeFrame(msgType, payload)
	if err != nil {
		return err
	}

	if s.encryptedProfile && !alwaysUnencrypted[msgType] {
		if s.keys == nil {
			return &HandshakeError{Step: "send", Cause: errSessionKeysMissing}
		}
		frame = protectFrame(*s.keys, frame)
	}

	slog.Debug("freestyle: sending frame", "type", msgType, "frame", hex.EncodeToString(frame))
	if err := s.device.Write(frame); err != nil {
		return err
	}
	return nil
}

// ReadResponse reads the next response-style frame, transparently
// discarding keep-alive traffic (spec.md §4.5) and translating device
// error frames into typed errors.
//
// On an encrypted-profile session, byte 1 (the message type) falls inside
// the range unprotectFrame decrypts ([1:56), spec.md §4.4) — it is
// ciphertext, not the cleartext type the wire format uses outbound. A
// frame cannot be classified by peeking at that byte before decryption, so
// classification instead follows the CMAC: a genuinely protected frame
// verifies and decrypts; a genuinely always-unencrypted frame (never
// protected by the device) fails verification against the session keys
// and is decoded as sent. Only byte 0 is reliably cleartext either way,
// and it carries no type information (it is the constant HID report id),
// so it cannot shortcut this.
func (s *Session) ReadResponse() (msgType byte, payload []byte, err error) {
	for {
		raw, err := s.device.Read()
		if err != nil {
			return 0, nil, err
		}
		slog.Debug("freestyle: read frame", "frame", hex.EncodeToString(raw))

		if len(raw) < frameSize {
			return 0, nil, &TransportError{Op: "read", Cause: errEmptyFrame}
		}

		frame := raw
		decrypted := false
		if s.encryptedProfile && s.keys != nil {
			unprotected, uerr := unprotectFrame(*s.keys, raw)
			if uerr == nil {
				frame = unprotected
				decrypted = true
			} else if _, ok := uerr.(*IntegrityError); !ok {
				return 0, nil, uerr
			}
			// Else the CMAC didn't verify under the session keys, meaning
			// this frame was never protected in the first place. Fall
			// through and decode raw directly; the always-unencrypted
			// check below rejects it if that assumption is wrong.
		}

		msgType, payload, err = decodeFrame(frame)
		if err != nil {
			return 0, nil, err
		}
		if s.encryptedProfile && !decrypted && !alwaysUnencrypted[msgType] {
			if s.keys == nil {
				return 0, nil, &HandshakeError{Step: "receive", Cause: errSessionKeysMissing}
			}
			return 0, nil, &IntegrityError{}
		}

		switch {
		case msgType == msgKeepAlive:
			// Some devices emit stray 0x22 0x01 xx frames between commands
			// that carry no protocol meaning; discard and keep reading.
			continue
		case msgType == msgUnknown && len(payload) == 1 && payload[0] == 0x85:
			return 0, nil, &UnknownMessageError{}
		case msgType == msgEncryptionResult && len(payload) == 1 && payload[0] == 0x15:
			return 0, nil, &EncryptionNotInitializedError{}
		case msgType == msgEncryptionResult && len(payload) == 1 && payload[0] == 0x14:
			return 0, nil, &EncryptionSetupFailedError{}
		}

		return msgType, payload, nil
	}
}
