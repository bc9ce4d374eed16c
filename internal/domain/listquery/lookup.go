package listquery

import "strings"

// LookupType selects the key used by the public insurance-status lookup.
type LookupType string

const (
	LookupVehicle LookupType = "vehicle"
	LookupMobile  LookupType = "mobile"
)

func ParseLookupType(raw string) (LookupType, bool) {
	switch LookupType(strings.ToLower(strings.TrimSpace(raw))) {
	case LookupVehicle:
		return LookupVehicle, true
	case LookupMobile:
		return LookupMobile, true
	}
	return "", false
}
