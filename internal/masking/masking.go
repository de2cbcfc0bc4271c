// Package masking replaces login PII with salted SHA-256 digests.
//
// The salt is a single shared value, so equal inputs always map to equal
// outputs and masked columns stay joinable. The same property makes
// low-entropy inputs such as IPv4 addresses recoverable by anyone holding
// the salt and a dictionary. Switching to per-record salts would break
// existing joins on masked identity.
package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/PratikDhanave/login-pii-pipeline/internal/models"
)

// ErrMissingField is returned when device_id or ip is absent.
var ErrMissingField = models.ErrMissingField

// Masker hashes PII fields under a fixed salt.
type Masker struct {
	salt string
}

// New returns a Masker. An empty salt is rejected.
func New(salt string) (*Masker, error) {
	if salt == "" {
		return nil, errors.New("masking salt required")
	}
	return &Masker{salt: salt}, nil
}

// Hash returns hex(SHA-256(salt || value)).
func (m *Masker) Hash(value string) string {
	sum := sha256.Sum256([]byte(m.salt + value))
	return hex.EncodeToString(sum[:])
}

// Mask hashes device_id and ip of ev. It has no side effects.
func (m *Masker) Mask(ev models.LoginEvent) (models.MaskedFields, error) {
	if ev.DeviceID == nil {
		return models.MaskedFields{}, fmt.Errorf("device_id: %w", ErrMissingField)
	}
	if ev.IP == nil {
		return models.MaskedFields{}, fmt.Errorf("ip: %w", ErrMissingField)
	}

	return models.MaskedFields{
		MaskedDeviceID: m.Hash(*ev.DeviceID),
		MaskedIP:       m.Hash(*ev.IP),
	}, nil
}
