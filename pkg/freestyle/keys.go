package freestyle

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadKeyHexFile loads a 16-byte master key override from a .hex file
// containing a single line of 32 hexadecimal characters. Used by
// deployments that have obtained the real encrypted-profile master keys
// out-of-band (spec.md §9) instead of the built-in placeholder sentinels.
func LoadKeyHexFile(path string) ([16]byte, error) {
	var key [16]byte

	f, err := os.Open(path)
	if err != nil {
		return key, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) != 32 {
			return key, fmt.Errorf("key must be 32 hex chars, got %d", len(line))
		}
		decoded, err := hex.DecodeString(line)
		if err != nil {
			return key, fmt.Errorf("invalid hex key: %w", err)
		}
		copy(key[:], decoded)
		return key, nil
	}
	if err := scanner.Err(); err != nil {
		return key, err
	}
	return key, errors.New("key file is empty")
}

// SetEncryptedProfileMasterKeys overrides the four placeholder sentinel
// master keys (spec.md §9) with real, out-of-band-obtained values. Must be
// called before Connect on an encrypted-profile session; it has no effect
// on sessions already handshaken.
func SetEncryptedProfileMasterKeys(authEnc, authMac, sessEnc, sessMac [16]byte) {
	authEncMasterKey = authEnc
	authMacMasterKey = authMac
	sessEncMasterKey = sessEnc
	sessMacMasterKey = sessMac
}
