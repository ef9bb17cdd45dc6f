package models

import (
	"fmt"
	"time"
)

// SecureTimestamp is a wall-clock instant bound to a device fingerprint and
// a nonce, signed with the shared secret.
type SecureTimestamp struct {
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
	DeviceInfo string `json:"deviceInfo"`
	Nonce      string `json:"nonce"`
}

// Time returns the signed instant.
func (s SecureTimestamp) Time() time.Time { return time.UnixMilli(s.Timestamp) }

// TimeAnchor is the single most recent (wall, monotonic, period, day)
// reference point used for drift detection.
type TimeAnchor struct {
	SystemTimeAtAnchor    int64  `json:"systemTimeAtAnchor"`
	MonotonicTimeAtAnchor int64  `json:"monotonicTimeAtAnchor"`
	PeriodOfAnchor        Period `json:"periodOfAnchor"`
	DayOfAnchor           string `json:"dayOfAnchor"`
	ScrollID              int    `json:"scrollId"`
	Hash                  string `json:"hash"`
}

// SignedFields returns the anchor fields covered by Hash, in signing order.
func (a TimeAnchor) SignedFields() []string {
	return []string{
		fmt.Sprint(a.SystemTimeAtAnchor),
		fmt.Sprint(a.MonotonicTimeAtAnchor),
		string(a.PeriodOfAnchor),
		a.DayOfAnchor,
		fmt.Sprint(a.ScrollID),
	}
}

// ReadingRecord is one confirmed reading and its link in the hash chain.
type ReadingRecord struct {
	ID              string          `json:"id"`
	ScrollID        int             `json:"scrollId"`
	DateKey         string          `json:"dateKey"`
	Period          Period          `json:"period"`
	Timestamp       int64           `json:"timestamp"`
	Sequence        int64           `json:"sequence"`
	Hash            string          `json:"hash"`
	PreviousHash    string          `json:"previousHash"`
	SecureTimestamp SecureTimestamp `json:"secureTimestamp"`
	TrustScore      float64         `json:"trustScore"`
	DeviceInfo      string          `json:"deviceInfo"`
	Suspicious      bool            `json:"suspicious"`
}

// RecordID builds the composite key "scrollId-dateKey-period".
func RecordID(scrollID int, dateKey string, period Period) string {
	return fmt.Sprintf("%d-%s-%s", scrollID, dateKey, period)
}

// ChainFields returns the record fields covered by Hash, in hashing order.
func (r ReadingRecord) ChainFields() []string {
	return []string{
		fmt.Sprint(r.ScrollID),
		fmt.Sprint(r.Sequence),
		fmt.Sprint(r.Timestamp),
		r.PreviousHash,
		r.DeviceInfo,
	}
}

// ChainLink is a reserved position in the hash chain.
type ChainLink struct {
	Sequence     int64  `json:"sequence"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previousHash"`
}

// ChainHead is the persisted pointer to the last link.
type ChainHead struct {
	Sequence int64  `json:"sequence"`
	Hash     string `json:"hash"`
}
