package freestyle

import "testing"

func TestVerifyChecksumLaw(t *testing.T) {
	body := []byte("hello\r\n")
	var sum uint32
	for _, b := range body {
		sum += uint32(b)
	}
	checksumHex := hexUpper32(sum)

	if err := verifyChecksum(body, checksumHex); err != nil {
		t.Fatalf("verifyChecksum of correct checksum failed: %v", err)
	}

	mutated := append([]byte{}, body...)
	mutated[0] ^= 0x01
	if err := verifyChecksum(mutated, checksumHex); err == nil {
		t.Fatalf("expected ChecksumError after single-byte mutation")
	} else if _, ok := err.(*ChecksumError); !ok {
		t.Fatalf("expected *ChecksumError, got %T", err)
	}
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

func TestDecodeReplacingReplacesNonASCII(t *testing.T) {
	raw := []byte{'a', 0xFF, 'b'}
	got := decodeReplacing(raw, "ascii")
	want := "a�b"
	if got != want {
		t.Fatalf("decodeReplacing() = %q, want %q", got, want)
	}
}

func TestRecordsIteratesMultirecordWithTrailingEmpty(t *testing.T) {
	// Mirrors spec scenario S7: body "a,1\r\nb,2\r\n" split on \r\n yields
	// ["a,1", "b,2", ""], and the trailing empty line is its own record.
	records := &Records{lines: []string{"a,1", "b,2", ""}}

	want := [][]string{{"a", "1"}, {"b", "2"}, {}}
	for i, w := range want {
		row, ok, err := records.Next()
		if err != nil {
			t.Fatalf("record %d: unexpected error: %v", i, err)
		}
		if !ok {
			t.Fatalf("record %d: expected ok=true", i)
		}
		if len(row) != len(w) {
			t.Fatalf("record %d: got %v, want %v", i, row, w)
		}
		for j := range w {
			if row[j] != w[j] {
				t.Fatalf("record %d: got %v, want %v", i, row, w)
			}
		}
	}

	if _, ok, err := records.Next(); err != nil || ok {
		t.Fatalf("expected iterator to be exhausted, got ok=%v err=%v", ok, err)
	}
}

func TestRecordsEmptyIteratorYieldsNothing(t *testing.T) {
	records := &Records{}
	if _, ok, err := records.Next(); err != nil || ok {
		t.Fatalf("expected empty Records to yield nothing immediately")
	}
}
