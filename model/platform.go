package model

import "fmt"

// Platform identifies the store a purchase was made on.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform parses the wire value sent by clients.
func ParsePlatform(value string) (Platform, error) {
	switch Platform(value) {
	case PlatformIOS:
		return PlatformIOS, nil
	case PlatformAndroid:
		return PlatformAndroid, nil
	default:
		return "", fmt.Errorf("unknown platform: %q", value)
	}
}

func (p Platform) String() string {
	return string(p)
}
