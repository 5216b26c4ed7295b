package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("STEELWORKS_TEST_MODE", "1")
		if os.Getenv("COMPANY_STATE") == "" {
			_ = os.Setenv("COMPANY_STATE", "Maharashtra")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
