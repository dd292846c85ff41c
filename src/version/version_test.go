// +build !unit

package version

import "testing"

// TestFlagEmpty fails if version.Flag is not empty, enforcing that a release
// build never ships a "develop" marker in its version string.
func TestFlagEmpty(t *testing.T) {
	if len(Flag) > 0 {
		t.Fatalf("Version Flag is not empty: %s", Flag)
	}
}
