package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
	"unicode/utf8"
)

// Layout (big endian):
//
//	[0]      version
//	[1:9]    created at, unix ms
//	[9:17]   expires at, unix ms
//	[17:21]  generation
//	[21]     user id length, then user id
//	uint16   user agent length, then user agent
//
// The fixed-width prefix is what the Lua scripts in store.go patch in place.
const (
	sessionFormatVersionV1 = 1

	maxUserAgentBytes = 1024
)

// ErrCorrupt is returned when a stored blob cannot be decoded.
var ErrCorrupt = errors.New("session blob corrupt")

func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("userID must be 1-255 bytes")
	}

	userAgent := truncateUserAgent(s.UserAgent)

	var buf bytes.Buffer
	buf.Grow(1 + 8 + 8 + 4 + 1 + len(s.UserID) + 2 + len(userAgent))

	buf.WriteByte(sessionFormatVersionV1)
	_ = binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli())
	_ = binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli())
	_ = binary.Write(&buf, binary.BigEndian, s.Generation)

	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	_ = binary.Write(&buf, binary.BigEndian, uint16(len(userAgent)))
	buf.WriteString(userAgent)

	return buf.Bytes(), nil
}

// truncateUserAgent caps ua at maxUserAgentBytes without splitting a rune.
func truncateUserAgent(ua string) string {
	if len(ua) <= maxUserAgentBytes {
		return ua
	}
	n := maxUserAgentBytes
	for n > 0 && !utf8.RuneStart(ua[n]) {
		n--
	}
	return ua[:n]
}

func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != sessionFormatVersionV1 {
		return nil, ErrCorrupt
	}

	var createdAt, expiresAt int64
	var generation uint32
	if err := binary.Read(r, binary.BigEndian, &createdAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &expiresAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &generation); err != nil {
		return nil, ErrCorrupt
	}

	userLen, err := r.ReadByte()
	if err != nil || userLen == 0 {
		return nil, ErrCorrupt
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(r, userID); err != nil {
		return nil, ErrCorrupt
	}

	var uaLen uint16
	if err := binary.Read(r, binary.BigEndian, &uaLen); err != nil {
		return nil, ErrCorrupt
	}
	if int(uaLen) > maxUserAgentBytes {
		return nil, ErrCorrupt
	}
	userAgent := make([]byte, uaLen)
	if _, err := io.ReadFull(r, userAgent); err != nil {
		return nil, ErrCorrupt
	}
	if r.Len() != 0 {
		return nil, ErrCorrupt
	}

	return &Session{
		UserID:     string(userID),
		UserAgent:  string(userAgent),
		CreatedAt:  time.UnixMilli(createdAt).UTC(),
		ExpiresAt:  time.UnixMilli(expiresAt).UTC(),
		Generation: generation,
	}, nil
}
