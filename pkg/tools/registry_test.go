package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/pkg/oracle"
)

func testCapability(name, result string) Capability {
	return Capability{
		Tool: oracle.Tool{Name: name, Description: name, InputSchema: map[string]any{"type": "object"}},
		Run: func(ctx context.Context, args map[string]any) (string, bool, error) {
			return result, false, nil
		},
	}
}

func TestRegistry_Grant_FailsFastOnMissingCapability(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(testCapability(CapListTables, "users"))

	_, err := reg.Grant(CapListTables, CapGetSchema)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapabilityMissing)
	assert.Contains(t, err.Error(), CapGetSchema)
}

func TestRegistry_Grant_ListsOnlyGrantedTools(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(
		testCapability(CapListTables, "users"),
		testCapability(CapGetSchema, "schema"),
		testCapability(CapRunQuery, "result"),
	)

	granted, err := reg.Grant(CapListTables, CapGetSchema)
	require.NoError(t, err)

	listed, err := granted.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, CapListTables, listed[0].Name)
	assert.Equal(t, CapGetSchema, listed[1].Name)
}

func TestRegistry_Grant_DispatchesCalls(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(
		testCapability(CapListTables, "users, orders"),
		testCapability(CapRunQuery, "result"),
	)

	granted, err := reg.Grant(CapListTables)
	require.NoError(t, err)

	out, isErr, err := granted.CallToolText(context.Background(), CapListTables, nil)
	require.NoError(t, err)
	assert.False(t, isErr)
	assert.Equal(t, "users, orders", out)
}

func TestRegistry_Grant_RejectsUngrantedTool(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(
		testCapability(CapListTables, "users"),
		testCapability(CapRunQuery, "result"),
	)

	granted, err := reg.Grant(CapListTables)
	require.NoError(t, err)

	// run_query is registered but not part of this grant; the call is
	// reported back to the model as an error, not executed.
	out, isErr, err := granted.CallToolText(context.Background(), CapRunQuery, nil)
	require.NoError(t, err)
	assert.True(t, isErr)
	assert.Contains(t, out, "unknown tool")
}
