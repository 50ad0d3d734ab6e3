package gcloud

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromServiceJSON(t *testing.T) {
	ctx := context.Background()
	_, err := LoadFromServiceJSON(ctx, filepath.Join(t.TempDir(), "missing.json"), ScopeCloudPlatform)
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	assert.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = Client(ctx, bad, ScopeCloudPlatform)
	assert.Error(t, err)
}
