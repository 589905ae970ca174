package ws

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
