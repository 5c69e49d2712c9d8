package app

import (
	"os"
	"strings"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether binaries should skip connecting to Postgres and
// Redis. Test binaries set ODYSSEY_TEST_MODE=1 or APP_ENV=test.
func InTestMode() bool {
	if os.Getenv(testModeEnv) == "1" {
		return true
	}
	return strings.EqualFold(os.Getenv("APP_ENV"), "test")
}
