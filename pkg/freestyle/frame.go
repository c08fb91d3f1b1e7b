package freestyle

import "fmt"

// frameSize is the fixed size of an on-wire HID frame: report id + type +
// length + up to 62 payload bytes, zero-padded.
const frameSize = 65

// maxPayloadLen is the largest payload a single frame can carry.
const maxPayloadLen = 62

// encodeFrame serializes a message type and payload into a 65-byte HID
// frame: byte 0 is always the HID report id (0), byte 1 is the message
// type, byte 2 is the payload length, and the payload follows, with the
// remainder zero-padded.
func encodeFrame(msgType byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadLen {
		return nil, fmt.Errorf("freestyle: payload of %d bytes exceeds max %d", len(payload), maxPayloadLen)
	}
	frame := make([]byte, frameSize)
	frame[0] = 0
	frame[1] = msgType
	frame[2] = byte(len(payload))
	copy(frame[3:], payload)
	return frame, nil
}

// decodeFrame parses a received HID frame, trusting the length byte at
// offset 2 to delimit the payload.
func decodeFrame(frame []byte) (msgType byte, payload []byte, err error) {
	if len(frame) < 3 {
		return 0, nil, fmt.Errorf("freestyle: frame too short (%d bytes)", len(frame))
	}
	msgType = frame[1]
	length := int(frame[2])
	end := 3 + length
	if end > len(frame) {
		return 0, nil, fmt.Errorf("freestyle: frame declares length %d beyond buffer (%d bytes)", length, len(frame))
	}
	payload = make([]byte, length)
	copy(payload, frame[3:end])
	return msgType, payload, nil
}
