package jsbridge

import "testing"

func TestAPI(t *testing.T) {
	v := API()
	if v.Major != APIMajor || v.Minor != APIMinor {
		t.Errorf("API() = %v", v)
	}
	if !v.Compatible() {
		t.Error("own API version must be compatible")
	}
}
