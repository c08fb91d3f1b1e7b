package freestyle

import (
	"encoding/csv"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var (
	// textCompletionRE requires the trailing \r\n after CMD OK/Fail!, unlike
	// the original driver's equivalent pattern. A deliberate divergence:
	// every reply this package accumulates carries the trailing \r\n, so
	// the stricter match never rejects a genuine completion.
	textCompletionRE = regexp.MustCompile(`CMD (?:OK|Fail!)\r\n`)
	textReplyRE      = regexp.MustCompile(`(?s)^(?P<body>.*)CKSM:(?P<checksum>[0-9A-F]{8})\r\nCMD (?P<status>OK|Fail!)\r\n$`)
	multirecordRE    = regexp.MustCompile(`(?s)^(?P<body>.+\r\n)(?P<count>[0-9]+),(?P<checksum>[0-9A-F]{8})\r\n$`)
)

const logEmptyBody = "Log Empty\r\n"

// SendTextCommand sends a text-channel command and reassembles the
// multi-frame reply into a single checksum-verified string, per spec.md
// §4.6.
func (s *Session) SendTextCommand(command []byte) (string, error) {
	body, err := s.sendTextCommandRaw(command)
	if err != nil {
		return "", err
	}
	return decodeReplacing(body, s.encoding), nil
}

// Records is a CSV record iterator over a verified multirecord reply body.
// It mirrors the original driver's csv.reader(body.split("\r\n")): each
// \r\n-delimited line (including the final, empty one after the body's
// trailing \r\n) is parsed as one independent CSV line.
type Records struct {
	lines []string
	pos   int
}

// Next returns the next record and true, or (nil, false) once every line
// has been consumed — matching the lenient, unquoted CSV dialect spec.md
// §8 describes. A line is split on commas with no quoting rules beyond
// the standard library's lenient parser.
func (r *Records) Next() ([]string, bool, error) {
	if r.pos >= len(r.lines) {
		return nil, false, nil
	}
	line := r.lines[r.pos]
	r.pos++

	if line == "" {
		return []string{}, true, nil
	}

	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	record, err := reader.Read()
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// QueryMultirecord sends a text-channel command whose reply is a sequence
// of comma-separated records terminated by a declared count and checksum,
// per spec.md §4.6 and §6.
func (s *Session) QueryMultirecord(command []byte) (*Records, error) {
	body, err := s.sendTextCommandRaw(command)
	if err != nil {
		return nil, err
	}
	if string(body) == logEmptyBody {
		return &Records{}, nil
	}

	match := multirecordRE.FindSubmatch(body)
	if match == nil {
		return nil, &MalformedReplyError{Buffer: body}
	}
	recordsRaw := match[1]
	checksumHex := match[3]
	// The declared count (match[2]) is parsed but, per spec.md §9, not
	// compared against the number of records actually emitted.
	if _, err := strconv.Atoi(string(match[2])); err != nil {
		return nil, &MalformedReplyError{Buffer: body}
	}

	if err := verifyChecksum(recordsRaw, checksumHex); err != nil {
		return nil, err
	}

	decoded := decodeReplacing(recordsRaw, s.encoding)
	return &Records{lines: strings.Split(decoded, "\r\n")}, nil
}

// sendTextCommandRaw implements the shared send/accumulate/parse/verify
// sequence behind SendTextCommand and QueryMultirecord.
func (s *Session) sendTextCommandRaw(command []byte) ([]byte, error) {
	if err := s.SendCommand(s.textTypeOut, command); err != nil {
		return nil, err
	}

	var buffer []byte
	for {
		msgType, payload, err := s.ReadResponse()
		if err != nil {
			return nil, err
		}
		if msgType != s.textTypeIn {
			return nil, &UnexpectedMessageTypeError{Got: msgType, Want: s.textTypeIn, Payload: payload}
		}
		buffer = append(buffer, payload...)
		slog.Debug("freestyle: accumulated text reply", "bytes", len(buffer))

		if textCompletionRE.Match(buffer) {
			break
		}
	}

	match := textReplyRE.FindSubmatch(buffer)
	if match == nil {
		return nil, &MalformedReplyError{Buffer: buffer}
	}
	body := match[1]
	checksumHex := match[2]
	status := match[3]

	if err := verifyChecksum(body, checksumHex); err != nil {
		return nil, err
	}
	if string(status) != "OK" {
		return nil, &CommandFailedError{Body: body}
	}
	return body, nil
}

// verifyChecksum implements spec.md §4.6 step 5: the additive checksum over
// raw bytes of body must equal the 8-hex-digit trailer value.
func verifyChecksum(body, checksumHex []byte) error {
	expected, err := strconv.ParseUint(string(checksumHex), 16, 32)
	if err != nil {
		return &MalformedReplyError{Buffer: body}
	}
	var got uint32
	for _, b := range body {
		got += uint32(b)
	}
	if uint32(expected) != got {
		return &ChecksumError{Expected: uint32(expected), Got: got}
	}
	return nil
}

// decodeReplacing decodes raw bytes against encoding, replacing invalid
// sequences rather than failing (spec.md §3 "decoding is lossy").
func decodeReplacing(raw []byte, encoding string) string {
	switch strings.ToLower(encoding) {
	case "", "ascii", "us-ascii":
		out := make([]rune, len(raw))
		for i, b := range raw {
			if b > 0x7F {
				out[i] = '�'
			} else {
				out[i] = rune(b)
			}
		}
		return string(out)
	default:
		// Any other requested encoding is treated as already-valid UTF-8;
		// invalid sequences are replaced by the Go string conversion rules.
		return strings.ToValidUTF8(string(raw), "�")
	}
}
