package sessions

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet avoids ambiguous characters (0/O, 1/I/L) so codes survive
// being read aloud across a room.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random join code of the given length.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
