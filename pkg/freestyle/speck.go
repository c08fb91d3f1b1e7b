package freestyle

import "encoding/binary"

// Speck-64/128: 64-bit block (two 32-bit words), 128-bit key, 27 rounds.
// Round constants per the public Speck specification (Beaulieu et al.).
const (
	speckRounds = 27
	speckAlpha  = 8
	speckBeta   = 3
)

// speckExpandKey derives the 27 round keys from a 16-byte key using the
// Speck key schedule for m=4 key words.
func speckExpandKey(key [16]byte) [speckRounds]uint32 {
	var K [4]uint32
	for i := 0; i < 4; i++ {
		K[i] = binary.LittleEndian.Uint32(key[i*4 : i*4+4])
	}

	const m = 4
	l := make([]uint32, speckRounds-1+m-1)
	l[0] = K[1]
	l[1] = K[2]
	l[2] = K[3]

	var k [speckRounds]uint32
	k[0] = K[0]
	for i := 0; i < speckRounds-1; i++ {
		l[i+m-1] = uint32(k[i]+rotr32(l[i], speckAlpha)) ^ uint32(i)
		k[i+1] = rotl32(k[i], speckBeta) ^ l[i+m-1]
	}
	return k
}

func rotr32(x uint32, n uint) uint32 { return (x >> n) | (x << (32 - n)) }
func rotl32(x uint32, n uint) uint32 { return (x << n) | (x >> (32 - n)) }

// speckEncryptBlock encrypts a single 8-byte block under the given
// (pre-expanded) round keys. Words are packed little-endian, x then y.
func speckEncryptBlock(rk [speckRounds]uint32, block [8]byte) [8]byte {
	x := binary.LittleEndian.Uint32(block[0:4])
	y := binary.LittleEndian.Uint32(block[4:8])
	for _, k := range rk {
		x = rotr32(x, speckAlpha)
		x += y
		x ^= k
		y = rotl32(y, speckBeta)
		y ^= x
	}
	var out [8]byte
	binary.LittleEndian.PutUint32(out[0:4], x)
	binary.LittleEndian.PutUint32(out[4:8], y)
	return out
}

// speckDecryptBlock inverts speckEncryptBlock.
func speckDecryptBlock(rk [speckRounds]uint32, block [8]byte) [8]byte {
	x := binary.LittleEndian.Uint32(block[0:4])
	y := binary.LittleEndian.Uint32(block[4:8])
	for i := speckRounds - 1; i >= 0; i-- {
		y ^= x
		y = rotr32(y, speckBeta)
		x ^= rk[i]
		x -= y
		x = rotl32(x, speckAlpha)
	}
	var out [8]byte
	binary.LittleEndian.PutUint32(out[0:4], x)
	binary.LittleEndian.PutUint32(out[4:8], y)
	return out
}

// SpeckEncrypt implements the counter-style stream mode spec.md §4.2
// describes: for each 8-byte block at counter index i, XOR plaintext with
// BlockEncrypt(key, iv+i).
type SpeckEncrypt struct {
	roundKeys [speckRounds]uint32
}

// NewSpeckEncrypt builds a Speck-64/128 stream cipher from a 16-byte key.
func NewSpeckEncrypt(key [16]byte) *SpeckEncrypt {
	return &SpeckEncrypt{roundKeys: speckExpandKey(key)}
}

// Encrypt and Decrypt are the same XOR-stream operation; both are provided
// so call sites read the way the protocol steps they implement do.
func (s *SpeckEncrypt) Encrypt(iv uint64, plaintext []byte) []byte {
	return s.xorStream(iv, plaintext)
}

func (s *SpeckEncrypt) Decrypt(iv uint64, ciphertext []byte) []byte {
	return s.xorStream(iv, ciphertext)
}

func (s *SpeckEncrypt) xorStream(iv uint64, data []byte) []byte {
	out := make([]byte, len(data))
	blocks := (len(data) + 7) / 8
	for i := 0; i < blocks; i++ {
		var ctrBlock [8]byte
		binary.LittleEndian.PutUint64(ctrBlock[:], iv+uint64(i))
		keystream := speckEncryptBlock(s.roundKeys, ctrBlock)

		start := i * 8
		end := start + 8
		if end > len(data) {
			end = len(data)
		}
		for j := start; j < end; j++ {
			out[j] = data[j] ^ keystream[j-start]
		}
	}
	return out
}

// speckCMACSubkeys derives the two CMAC subkeys per the standard
// doubling-in-GF(2^64) construction, feedback polynomial x^64+x^4+x^3+x+1
// (Rb = 0x1B for a 64-bit block).
func speckCMACSubkeys(rk [speckRounds]uint32) (k1, k2 [8]byte) {
	const rb = 0x1B
	L := speckEncryptBlock(rk, [8]byte{})

	k1 = leftShift1Block(L)
	if L[0]&0x80 != 0 {
		k1[7] ^= rb
	}

	k2 = leftShift1Block(k1)
	if k1[0]&0x80 != 0 {
		k2[7] ^= rb
	}
	return k1, k2
}

func leftShift1Block(in [8]byte) [8]byte {
	var out [8]byte
	var carry byte
	for i := 7; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = (in[i] >> 7) & 1
	}
	return out
}

func xorBlock8(a, b [8]byte) [8]byte {
	var out [8]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// SpeckCMAC implements CMAC over the Speck-64/128 block cipher, plus the
// SP800-108-style counter-mode KDF built on it.
type SpeckCMAC struct {
	roundKeys [speckRounds]uint32
}

// NewSpeckCMAC builds a Speck-CMAC instance from a 16-byte key.
func NewSpeckCMAC(key [16]byte) *SpeckCMAC {
	return &SpeckCMAC{roundKeys: speckExpandKey(key)}
}

// Sign computes the 64-bit CMAC tag over msg.
func (s *SpeckCMAC) Sign(msg []byte) [8]byte {
	k1, k2 := speckCMACSubkeys(s.roundKeys)

	n := (len(msg) + 7) / 8
	if n == 0 {
		n = 1
	}
	lastComplete := len(msg) != 0 && len(msg)%8 == 0

	var last [8]byte
	if lastComplete {
		copy(last[:], msg[(n-1)*8:])
		last = xorBlock8(last, k1)
	} else {
		remain := len(msg) - (n-1)*8
		if remain > 0 {
			copy(last[:], msg[(n-1)*8:])
		}
		last[remain] = 0x80
		last = xorBlock8(last, k2)
	}

	var x, y [8]byte
	for i := 0; i < n-1; i++ {
		start := i * 8
		var block [8]byte
		copy(block[:], msg[start:start+8])
		y = xorBlock8(x, block)
		x = speckEncryptBlock(s.roundKeys, y)
	}
	y = xorBlock8(x, last)
	x = speckEncryptBlock(s.roundKeys, y)
	return x
}

// Derive implements the two-counter SP800-108-style KDF of spec.md §4.2:
// for counter i = 1, 2, CMAC(master, i_be32 ‖ label ‖ 0x00 ‖ context ‖
// 0x0080_be16); the two 64-bit tags are concatenated into a 128-bit key.
func (s *SpeckCMAC) Derive(label [8]byte, context []byte) [16]byte {
	var out [16]byte
	for i := 1; i <= 2; i++ {
		msg := make([]byte, 0, 4+8+1+len(context)+2)
		msg = append(msg, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
		msg = append(msg, label[:]...)
		msg = append(msg, 0x00)
		msg = append(msg, context...)
		msg = append(msg, 0x00, 0x80)

		tag := s.Sign(msg)
		copy(out[(i-1)*8:i*8], tag[:])
	}
	return out
}
