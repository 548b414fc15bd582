package api

import "github.com/google/uuid"

const (
	roomCodeLength   = 8
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Largest multiple of len(roomCodeAlphabet) that fits in a byte.
	roomCodeByteLimit = 252
)

// uuidRandomBytes returns the bytes of a version 4 UUID that carry no
// version or variant bits.
func uuidRandomBytes() []byte {
	id := uuid.New()
	out := make([]byte, 0, 14)
	out = append(out, id[0:6]...)
	out = append(out, id[7])
	return append(out, id[9:]...)
}

// NewRoomCode draws an 8-character join code from random UUIDs. Bytes at or
// above roomCodeByteLimit are skipped so every character is equally likely.
func NewRoomCode() string {
	return roomCodeFrom(uuidRandomBytes)
}

func roomCodeFrom(source func() []byte) string {
	code := make([]byte, 0, roomCodeLength)
	for len(code) < roomCodeLength {
		for _, b := range source() {
			if b >= roomCodeByteLimit {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == roomCodeLength {
				break
			}
		}
	}
	return string(code)
}
