package goQrLogin

import (
	"strings"

	"github.com/MrEthical07/goQrLogin/internal"
)

// sanitizeDevice returns a length-capped copy of caller-supplied device
// info. Device fields are attacker-controlled input and are stored on the
// session record.
func sanitizeDevice(d *Device, maxLen int) *Device {
	if d == nil {
		return nil
	}
	return &Device{
		Name:       sanitizeField(d.Name, maxLen),
		Platform:   sanitizeField(d.Platform, maxLen),
		OSVersion:  sanitizeField(d.OSVersion, maxLen),
		Model:      sanitizeField(d.Model, maxLen),
		AppVersion: sanitizeField(d.AppVersion, maxLen),
	}
}

func sanitizeField(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// deviceFingerprint derives the grouping key for a device + user agent pair.
// An empty device still yields a fingerprint from the user agent alone.
func deviceFingerprint(d *Device, userAgent string) string {
	if d == nil {
		d = &Device{}
	}
	return internal.Fingerprint(d.Platform, d.OSVersion, d.Model, d.AppVersion, userAgent)
}
