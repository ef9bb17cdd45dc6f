// Package timestamp issues secure timestamps: wall-clock instants bound to a
// device fingerprint and a random nonce, signed with the shared MAC key.
package timestamp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/dmitrijs2005/scrollkeeper/internal/cryptox"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
	"github.com/dmitrijs2005/scrollkeeper/internal/shared"
	"github.com/dmitrijs2005/scrollkeeper/internal/timex"
)

const (
	nonceSize         = 16
	fingerprintLength = 16
	userAgentLimit    = 100
)

// DeviceProfile lists the device characteristics folded into a fingerprint.
// Similar devices collide; the fingerprint only deters casual record moves.
type DeviceProfile struct {
	Screen     string
	Timezone   string
	Language   string
	Platform   string
	ColorDepth int
	UserAgent  string
}

// DetectProfile builds a profile from the host environment.
func DetectProfile() DeviceProfile {
	host, _ := os.Hostname()
	tz := os.Getenv("TZ")
	if tz == "" {
		tz = "Local"
	}
	return DeviceProfile{
		Screen:     os.Getenv("COLUMNS") + "x" + os.Getenv("LINES"),
		Timezone:   tz,
		Language:   os.Getenv("LANG"),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		ColorDepth: 24,
		UserAgent:  "scrollkeeper/" + runtime.Version() + " " + host,
	}
}

// Fingerprint hashes the profile into a short stable identifier.
func (p DeviceProfile) Fingerprint() string {
	ua := p.UserAgent
	if len(ua) > userAgentLimit {
		ua = ua[:userAgentLimit]
	}
	raw := strings.Join([]string{
		p.Screen,
		p.Timezone,
		p.Language,
		p.Platform,
		fmt.Sprint(p.ColorDepth),
		ua,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

// Service implements the secure timestamp operations.
type Service struct {
	key         []byte
	clock       timex.Clock
	fingerprint string
}

func NewService(key []byte, clock timex.Clock, profile DeviceProfile) *Service {
	return &Service{key: key, clock: clock, fingerprint: profile.Fingerprint()}
}

// DeviceFingerprint returns the fingerprint of the current device.
func (s *Service) DeviceFingerprint() string {
	return s.fingerprint
}

// Generate samples the wall clock and signs it.
func (s *Service) Generate() (models.SecureTimestamp, error) {
	nonce, err := shared.MakeRandHexString(nonceSize)
	if err != nil {
		return models.SecureTimestamp{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ts := models.SecureTimestamp{
		Timestamp:  s.clock.Now().UnixMilli(),
		DeviceInfo: s.fingerprint,
		Nonce:      nonce,
	}
	ts.Signature = cryptox.Sign(s.key, signedFields(ts)...)
	return ts, nil
}

// Validate recomputes the signature. Any mismatch, including a malformed
// signature, is reported as invalid.
func (s *Service) Validate(ts models.SecureTimestamp) bool {
	if ts.Signature == "" {
		return false
	}
	return cryptox.Verify(s.key, ts.Signature, signedFields(ts)...)
}

// IsCurrentDevice reports whether deviceInfo was produced on this device.
func (s *Service) IsCurrentDevice(deviceInfo string) bool {
	return deviceInfo == s.fingerprint
}

func signedFields(ts models.SecureTimestamp) []string {
	return []string{fmt.Sprint(ts.Timestamp), ts.DeviceInfo, ts.Nonce}
}
