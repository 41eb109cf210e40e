package memory_test

import (
	"testing"

	"github.com/versebook/verse-server/iap/tests"
)

func TestIAP_MemoryServer(t *testing.T) {
	tests.RunServerTests(t)
}
