package testsupport

import (
	"context"
	"testing"

	"wepp/internal/config"
	"wepp/internal/workspace"
)

// MustOpenWorkspace opens the configured workspace store for tests and
// registers cleanup.
func MustOpenWorkspace(t testing.TB, cfg *config.Config) *workspace.Store {
	t.Helper()

	store, err := workspace.Open(context.Background(), cfg.Paths.WorkspaceDir)
	if err != nil {
		t.Fatalf("workspace.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
