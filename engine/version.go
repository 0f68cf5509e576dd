package engine

import "fmt"

// Bridge API version. A host must present the same major version and a
// minor version at least this high.
const (
	APIMajor int32 = 1
	APIMinor int32 = 0
)

// APIVersion is the version a host presents during the handshake.
type APIVersion struct {
	Major int32
	Minor int32
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether a host presenting v can drive this bridge.
func (v APIVersion) Compatible() bool {
	return v.Major == APIMajor && v.Minor >= APIMinor
}
