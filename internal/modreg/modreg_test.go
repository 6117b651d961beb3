package modreg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/value"
)

func uppercaseDescriptor(major, minor int) *Descriptor {
	return &Descriptor{
		ID: Identity{Name: "Uppercase", Major: major, Minor: minor},
		Signature: Signature{
			Consumes: []Param{{Name: "text", Type: value.String}},
			Produces: []Param{{Name: "result", Type: value.String}},
		},
		Kind: Pure,
		Pure: func(in *value.VRecord) (*value.VRecord, error) {
			return in, nil
		},
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(uppercaseDescriptor(1, 0)))
	d, err := r.Resolve("Uppercase", nil)
	require.NoError(t, err)
	require.Equal(t, Identity{"Uppercase", 1, 0}, d.ID)
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(uppercaseDescriptor(1, 0)))
	err := r.Register(uppercaseDescriptor(1, 0))
	require.Error(t, err)
	rep, ok := errors.AsReport(err)
	require.True(t, ok)
	require.Equal(t, errors.MOD001, rep.Code)
}

func TestResolveMissingModule(t *testing.T) {
	r := New()
	_, err := r.Resolve("Nope", nil)
	require.Error(t, err)
	rep, ok := errors.AsReport(err)
	require.True(t, ok)
	require.Equal(t, errors.MOD002, rep.Code)
}

func TestResolveHighestMinorAboveFloor(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(uppercaseDescriptor(1, 0)))
	require.NoError(t, r.Register(uppercaseDescriptor(1, 2)))
	require.NoError(t, r.Register(uppercaseDescriptor(1, 5)))
	require.NoError(t, r.Register(uppercaseDescriptor(2, 0)))

	d, err := r.Resolve("Uppercase", &VersionFloor{Major: 1, Minor: 1})
	require.NoError(t, err)
	require.Equal(t, 5, d.ID.Minor)

	_, err = r.Resolve("Uppercase", &VersionFloor{Major: 1, Minor: 9})
	require.Error(t, err)
}

func TestInvokePureAndEffectful(t *testing.T) {
	pure := uppercaseDescriptor(1, 0)
	out, err := pure.Invoke(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, out)

	effectful := &Descriptor{
		ID:   Identity{Name: "Fetch", Major: 1, Minor: 0},
		Kind: Effectful,
		Effect: func(ctx context.Context, in *value.VRecord) (*value.VRecord, error) {
			return in, nil
		},
	}
	out2, err := effectful.Invoke(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, out2)
}
