// Package testutil holds helpers shared by the invoicing integration tests:
// fakes of the remote client registry and tax service, an event recorder
// and JSON request helpers for the gin engine.
package testutil

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Eventually polls cond every interval until it holds or timeout passes and
// reports whether it held.
func Eventually(t *testing.T, cond func() bool, timeout, interval time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
