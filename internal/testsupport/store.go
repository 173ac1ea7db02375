package testsupport

import (
	"testing"

	"mixdown/internal/blob"
	"mixdown/internal/config"
	"mixdown/internal/mq"
)

// MustOpenBroker opens an mq.Broker for tests and registers cleanup.
func MustOpenBroker(t testing.TB, cfg *config.Config) *mq.Broker {
	t.Helper()

	broker, err := mq.Open(cfg)
	if err != nil {
		t.Fatalf("mq.Open: %v", err)
	}
	t.Cleanup(func() {
		broker.Close()
	})
	return broker
}

// MustOpenBlobStore opens a blob.Store for tests and registers cleanup.
func MustOpenBlobStore(t testing.TB, cfg *config.Config) *blob.Store {
	t.Helper()

	store, err := blob.Open(cfg)
	if err != nil {
		t.Fatalf("blob.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
