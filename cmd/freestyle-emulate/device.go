package main

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"github.com/barnettlynn/freestyle-hid/pkg/freestyle"
)

// These mirror the unexported master-key sentinels in pkg/freestyle
// exactly: the emulator stands in for a real meter, so it must derive
// session keys the same way the driver does in order to interoperate.
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

// emulatedDevice plays the meter's side of the HID session protocol: it
// answers the handshake, accepts encrypted text commands, and replies with
// a canned echo so the freestyle session and handshake logic can be
// exercised in-process without a physical meter attached.
type emulatedDevice struct {
	serial      []byte
	textTypeIn  byte
	textTypeOut byte
	encrypted   bool

	outbox [][]byte

	authEnc *freestyle.SpeckEncrypt
	authMac *freestyle.SpeckCMAC
	readerRand []byte
	ivCounter  uint64

	sessEnc *freestyle.SpeckEncrypt
	sessMac *freestyle.SpeckCMAC

	recvIVCounter uint32
}

func newEmulatedDevice(serial []byte, textTypeOut, textTypeIn byte, encrypted bool) *emulatedDevice {
	return &emulatedDevice{
		serial:      serial,
		textTypeOut: textTypeOut,
		textTypeIn:  textTypeIn,
		encrypted:   encrypted,
	}
}

// Write accepts one outbound HID report from the driver and reacts to it,
// queuing zero or more reply frames for the next Read.
func (d *emulatedDevice) Write(frame []byte) error {
	if len(frame) < 3 {
		return errors.New("emulator: short frame")
	}
	msgType := frame[1]

	var plainType byte
	var plainPayload []byte
	if d.encrypted && !alwaysUnencrypted[msgType] {
		pt, err := d.deviceUnprotect(frame)
		if err != nil {
			return err
		}
		plainType, plainPayload = pt[1], pt[3:3+int(pt[2])]
	} else {
		plainType, plainPayload = msgType, frame[3:3+int(frame[2])]
	}

	switch plainType {
	case 0x05:
		d.reply(0x06, d.serial)
	case 0x01:
		d.reply(0x71, []byte{0x01})
	case 0x14:
		d.handleCrypto(plainPayload)
	case d.textTypeOut:
		d.handleText(plainPayload)
	default:
		d.reply(0x30, []byte{0x85})
	}
	return nil
}

// Read dequeues the next reply frame previously queued by Write.
func (d *emulatedDevice) Read() ([]byte, error) {
	if len(d.outbox) == 0 {
		return nil, errors.New("emulator: no reply queued")
	}
	frame := d.outbox[0]
	d.outbox = d.outbox[1:]
	return frame, nil
}

func (d *emulatedDevice) Close() error { return nil }

func (d *emulatedDevice) reply(msgType byte, payload []byte) {
	frame := make([]byte, 65)
	frame[1] = msgType
	frame[2] = byte(len(payload))
	copy(frame[3:], payload)

	if d.encrypted && !alwaysUnencrypted[msgType] {
		frame = d.deviceProtect(frame)
	}
	d.outbox = append(d.outbox, frame)
}

func (d *emulatedDevice) handleCrypto(payload []byte) {
	switch {
	case len(payload) == 1 && payload[0] == 0x11:
		authEncKey := freestyle.NewSpeckCMAC(authEncMasterKey).Derive(labelAuthEnc, d.serial)
		authMacKey := freestyle.NewSpeckCMAC(authMacMasterKey).Derive(labelAuthMAC, d.serial)
		d.authEnc = freestyle.NewSpeckEncrypt(authEncKey)
		d.authMac = freestyle.NewSpeckCMAC(authMacKey)

		d.readerRand = make([]byte, 8)
		_, _ = io.ReadFull(rand.Reader, d.readerRand)
		d.ivCounter = 1

		resp := append([]byte{0x16}, d.readerRand...)
		resp = append(resp, beBytes56(d.ivCounter)...)
		d.reply(0x33, resp)

	case len(payload) >= 1 && payload[0] == 0x17:
		respEnc := payload[1:17]
		respMac := payload[18:26]

		macInput := append([]byte{0x14, 0x1a, 0x17}, respEnc...)
		macInput = append(macInput, 0x01)
		expect := d.authMac.Sign(macInput)
		if !bytesEqual(expect[:], respMac) {
			return
		}

		plain := d.authEnc.Decrypt(d.ivCounter, respEnc)
		readerEcho := plain[0:8]
		driverRand := plain[8:16]
		if !bytesEqual(readerEcho, d.readerRand) {
			return
		}

		iv2 := d.ivCounter + 1
		respPlain := append(append([]byte{}, driverRand...), d.readerRand...)
		respEnc2 := d.authEnc.Encrypt(iv2, respPlain)

		body := append([]byte{0x18}, respEnc2...)
		body = append(body, beBytes56(iv2)...)
		mac := d.authMac.Sign(append([]byte{0x33, 0x22}, body...))
		body = append(body, mac[:]...)
		d.reply(0x33, body)

		context := append(append(append([]byte{}, d.serial...), d.readerRand...), driverRand...)
		sessEncKey := freestyle.NewSpeckCMAC(sessEncMasterKey).Derive(labelSessEnc, context)
		sessMacKey := freestyle.NewSpeckCMAC(sessMacMasterKey).Derive(labelSessMAC, context)
		d.sessEnc = freestyle.NewSpeckEncrypt(sessEncKey)
		d.sessMac = freestyle.NewSpeckCMAC(sessMacKey)
	}
}

// handleText answers any text-channel command with a fixed echo reply so
// the driver session has something checksum-valid to parse.
func (d *emulatedDevice) handleText(command []byte) {
	body := append(append([]byte{}, command...), '\r', '\n')
	var sum uint32
	for _, b := range body {
		sum += uint32(b)
	}
	reply := []byte{}
	reply = append(reply, body...)
	reply = append(reply, []byte("CKSM:")...)
	reply = append(reply, hexUpper32(sum)...)
	reply = append(reply, '\r', '\n')
	reply = append(reply, []byte("CMD OK\r\n")...)

	// A protected frame carries ciphertext only in [1:56), leaving room for
	// 53 payload bytes after the type and length bytes.
	maxChunk := 62
	if d.encrypted {
		maxChunk = 53
	}
	for len(reply) > 0 {
		chunk := reply
		if len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}
		d.reply(d.textTypeIn, chunk)
		reply = reply[len(chunk):]
	}
}

// deviceProtect builds a frame in the "Unprotect"-compatible layout that
// Session.ReadResponse expects from the device: ciphertext at [1:56),
// IV counter at [56:60), truncated tag at [60:64).
func (d *emulatedDevice) deviceProtect(frame []byte) []byte {
	out := make([]byte, len(frame))
	copy(out, frame)

	ivCounter := d.recvIVCounter
	d.recvIVCounter++
	iv := uint64(ivCounter) << 8

	ciphertext := d.sessEnc.Encrypt(iv, frame[1:56])
	copy(out[1:56], ciphertext)
	binary.BigEndian.PutUint32(out[56:60], ivCounter)

	tag := d.sessMac.Sign(out[0:60])
	copy(out[60:64], tag[4:8])
	out[64] = 0
	return out
}

// deviceUnprotect verifies and decrypts a frame built by Session.SendCommand
// in the "Protect" layout: ciphertext at [2:57), IV zeroed at [57:61),
// truncated tag at [61:65), MAC input [1:61).
func (d *emulatedDevice) deviceUnprotect(frame []byte) ([]byte, error) {
	tag := d.sessMac.Sign(frame[1:61])
	if tag[4] != frame[61] || tag[5] != frame[62] || tag[6] != frame[63] || tag[7] != frame[64] {
		return nil, errors.New("emulator: inbound MAC mismatch")
	}

	out := make([]byte, len(frame))
	copy(out, frame)
	plaintext := d.sessEnc.Decrypt(0xFF, frame[2:57])
	copy(out[2:57], plaintext)
	return out, nil
}

func beBytes56(v uint64) []byte {
	b := make([]byte, 7)
	for i := 0; i < 7; i++ {
		b[6-i] = byte(v >> (8 * i))
	}
	return b
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hexUpper32(v uint32) []byte {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = digits[v&0xF]
		v >>= 4
	}
	return out
}

// alwaysUnencrypted mirrors pkg/freestyle's exempt set; the device must
// apply the same exemption the driver does or the two sides will disagree
// on which frames carry ciphertext.
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
