package input

import (
	"strconv"
	"strings"

	evdev "github.com/holoplot/go-evdev"
	"github.com/juju/errors"
)

// EvKey is input_event.type of key and button records, others are dropped.
const EvKey = uint16(evdev.EV_KEY)

// ParseKey accepts KEY_VOLUMEUP, volumeup, BTN_0 or numeric code (116, 0x74).
func ParseKey(s string) (uint16, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return 0, errors.NotValidf("empty key")
	}
	// digits are always a code, "1" is KEY_ESC not KEY_1
	if raw[0] >= '0' && raw[0] <= '9' {
		n, err := strconv.ParseUint(raw, 0, 16)
		if err != nil {
			return 0, errors.NotValidf("key %q: numeric code out of range", s)
		}
		return uint16(n), nil
	}
	if code, ok := evdev.KEYFromString[raw]; ok {
		return uint16(code), nil
	}
	if code, ok := evdev.KEYFromString["KEY_"+raw]; ok {
		return uint16(code), nil
	}
	return 0, errors.NotValidf("key %q: use names like KEY_POWER or numeric code", s)
}

// KeyName returns the best name for code, "unknown" if there is none.
func KeyName(code uint16) string {
	name := evdev.CodeName(evdev.EV_KEY, evdev.EvCode(code))
	if name == "" {
		return "unknown"
	}
	// aliases come joined with '/', prefer the last KEY_ or BTN_ one
	if strings.Contains(name, "/") {
		parts := strings.Split(name, "/")
		for i := len(parts) - 1; i >= 0; i-- {
			part := strings.TrimSpace(parts[i])
			if strings.HasPrefix(part, "KEY_") || strings.HasPrefix(part, "BTN_") {
				return part
			}
		}
		return strings.TrimSpace(parts[len(parts)-1])
	}
	return name
}
