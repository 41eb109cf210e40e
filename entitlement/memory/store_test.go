package memory

import (
	"testing"

	"github.com/versebook/verse-server/entitlement/tests"
)

func TestEntitlement_MemoryStore(t *testing.T) {
	store := NewInMemory()
	teardown := func() { store.reset() }
	tests.RunStoreTests(t, store, teardown)
}
