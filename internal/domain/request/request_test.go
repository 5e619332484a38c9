package request

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixcfg/internal/domain/failure"
)

func TestRebuildRequestRejectsUnknownOperation(t *testing.T) {
	err := Struct(RebuildRequest{Operation: "nuke"}, failure.InvalidOperation, "rebuild")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.InvalidOperation))
	assert.Contains(t, err.Error(), "operation must be one of: switch, boot, test, dry-build, dry-run, build")
}

func TestRebuildRequestAcceptsKnownOperations(t *testing.T) {
	for _, op := range []string{"switch", "boot", "test", "dry-build", "dry-run", "build"} {
		assert.NoError(t, Struct(RebuildRequest{Operation: op}, failure.InvalidOperation, "rebuild"), op)
	}
}

func TestSearchRequestBounds(t *testing.T) {
	assert.NoError(t, Struct(SearchRequest{Query: "vim", Limit: 50}, failure.InvalidIdentifier, "search"))

	err := Struct(SearchRequest{Query: "v"}, failure.InvalidIdentifier, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query must be at least 2 characters")

	err = Struct(SearchRequest{Query: "vim", Limit: -1}, failure.InvalidIdentifier, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be >= 0")
}

func TestSaveRequestRequiresAbsolutePath(t *testing.T) {
	err := Struct(SaveRequest{Content: "x", Path: "relative.nix"}, failure.InvalidIdentifier, "save")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path must start with /")
	assert.NoError(t, Struct(SaveRequest{Content: "x"}, failure.InvalidIdentifier, "save"))
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "create_backup", toSnakeCase("CreateBackup"))
	assert.Equal(t, "query", toSnakeCase("Query"))
}
