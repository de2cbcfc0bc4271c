package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingField is wrapped with the name of an absent or null field.
	ErrMissingField = errors.New("required field missing")
	// ErrNotObject is returned when a message body is valid JSON but not an object.
	ErrNotObject = errors.New("body must be a JSON object")
)

// PassThroughFields are copied verbatim into user_logins and must be present.
var PassThroughFields = []string{"user_id", "device_type", "locale", "app_version"}

// LoginEvent is the JSON body of a queue message.
// DeviceID and IP are pointers so an absent field can be told apart from an empty one.
type LoginEvent struct {
	UserID     string     `json:"user_id"`
	DeviceType string     `json:"device_type"`
	DeviceID   *string    `json:"device_id"`
	IP         *string    `json:"ip"`
	Locale     string     `json:"locale"`
	AppVersion AppVersion `json:"app_version"`

	// present holds the non-null keys seen while decoding.
	present map[string]bool
}

// UnmarshalJSON decodes an object body and remembers which keys carried a value.
func (e *LoginEvent) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return ErrNotObject
	}

	type plain LoginEvent
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}

	*e = LoginEvent(p)
	e.present = make(map[string]bool, len(raw))
	for k, v := range raw {
		if !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			e.present[k] = true
		}
	}
	return nil
}

// RequireFields reports the first of names that was absent or null in the decoded body.
// Events built in code rather than decoded have no recorded keys.
func (e LoginEvent) RequireFields(names ...string) error {
	for _, n := range names {
		if !e.present[n] {
			return fmt.Errorf("%s: %w", n, ErrMissingField)
		}
	}
	return nil
}

// AppVersion accepts both "3.1" and 3.1 from producers and keeps the text as-is.
type AppVersion string

// UnmarshalJSON stores numbers by their literal text so 3.10 stays "3.10".
func (v *AppVersion) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = AppVersion(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("app_version must be a string or number")
	}
	*v = AppVersion(n.String())
	return nil
}

// MaskedFields holds the hashed replacements for the two PII fields.
type MaskedFields struct {
	MaskedDeviceID string `json:"masked_device_id"`
	MaskedIP       string `json:"masked_ip"`
}

// MaskedRecord is one row of user_logins. Rows are append-only.
// CreateDate is the day the row was written, not when the login happened.
type MaskedRecord struct {
	UserID         string
	DeviceType     string
	MaskedIP       string
	MaskedDeviceID string
	Locale         string
	AppVersion     string
	CreateDate     time.Time
}

// NewMaskedRecord combines pass-through fields with masked fields.
// now is truncated to a calendar date in its own location.
func NewMaskedRecord(ev LoginEvent, masked MaskedFields, now time.Time) MaskedRecord {
	y, m, d := now.Date()
	return MaskedRecord{
		UserID:         ev.UserID,
		DeviceType:     ev.DeviceType,
		MaskedIP:       masked.MaskedIP,
		MaskedDeviceID: masked.MaskedDeviceID,
		Locale:         ev.Locale,
		AppVersion:     string(ev.AppVersion),
		CreateDate:     time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
}

// LoginCountResponse is returned by GET /logins/count.
type LoginCountResponse struct {
	From       string `json:"from"`
	To         string `json:"to"`
	DeviceType string `json:"device_type,omitempty"`
	Count      int64  `json:"count"`
}
