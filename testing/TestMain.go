// Package testing switches the process into test mode when imported by a
// test binary. Blank-import it from any package whose tests build the app.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

// testEnv is applied before any test runs. Values already present in the
// environment are kept, except the test-mode switch itself.
var testEnv = map[string]string{
	"APP_ENV":    "test",
	"JWT_SECRET": "test-secret-not-for-production-use",
	"LOG_LEVEL":  "warn",
}

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		for key, value := range testEnv {
			if _, ok := os.LookupEnv(key); !ok {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain is exported for packages that want to delegate their own TestMain.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
