package mpesa

import (
	"encoding/base64"
	"time"
)

// Location is the gateway's wall clock (EAT). Timestamps in requests and
// callbacks are local to it.
var Location = time.FixedZone("EAT", 3*60*60)

const timestampLayout = "20060102150405"

// Timestamp formats t as YYYYMMDDHHmmss in the gateway's zone.
func Timestamp(t time.Time) string {
	return t.In(Location).Format(timestampLayout)
}

// ParseTimestamp is the inverse of Timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, s, Location)
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
