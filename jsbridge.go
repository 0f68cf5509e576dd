package jsbridge

import "github.com/wippyai/js-bridge/engine"

// API version implemented by this library. A host must present the same
// major version and a minor version no lower than APIMinor.
const (
	APIMajor = engine.APIMajor
	APIMinor = engine.APIMinor
)

// Version is the library release, set with -ldflags "-X".
var Version = "dev"

// API returns the API version as handed to engine.Engine.Init.
func API() engine.APIVersion {
	return engine.APIVersion{Major: APIMajor, Minor: APIMinor}
}
