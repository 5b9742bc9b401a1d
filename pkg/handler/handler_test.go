package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/types"
)

func noop(ctx context.Context, req *codec.Request, nas *types.NasProperties, data any) (*codec.Reply, error) {
	return nil, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Handler{Module: "auth", Serve: noop, Data: 42}))

	h, ok := r.Get("auth")
	require.True(t, ok)
	assert.Equal(t, 42, h.Data)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Handler{Serve: noop}))
	assert.Error(t, r.Register(&Handler{Module: "auth"}))
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Handler{Module: "auth", Serve: noop, Data: "old"}))
	require.NoError(t, r.Register(&Handler{Module: "auth", Serve: noop, Data: "new"}))

	h, _ := r.Get("auth")
	assert.Equal(t, "new", h.Data)
}

func TestModulesAndDeregister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Handler{Module: "auth", Serve: noop}))
	require.NoError(t, r.Register(&Handler{Module: "acct", Serve: noop}))
	assert.ElementsMatch(t, []string{"auth", "acct"}, r.Modules())

	r.Deregister("auth")
	assert.Equal(t, []string{"acct"}, r.Modules())
}
