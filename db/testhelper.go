package db

import (
	"path/filepath"
	"testing"
)

// OpenTestClient opens a migrated store in t.TempDir() and closes it when the
// test ends.
func OpenTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Migrate(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return client
}
