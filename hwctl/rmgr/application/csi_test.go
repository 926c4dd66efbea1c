package application

import (
	"testing"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/stretchr/testify/require"
)

func TestCSIReceiver_RegisterUnregister(t *testing.T) {
	r, err := NewCSIReceiver(domain.NumCSIPorts, domain.MaxSPThreads)
	require.NoError(t, err)

	require.NoError(t, r.Register(1, 0))
	require.NoError(t, r.Register(1, 3))
	require.ErrorIs(t, r.Register(1, 3), domain.ErrInvalidHandle)

	got, err := r.Registered(1)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 3}, got)

	require.NoError(t, r.Unregister(1, 0))
	require.ErrorIs(t, r.Unregister(1, 0), domain.ErrInvalidHandle)

	got, err = r.Registered(1)
	require.NoError(t, err)
	require.Equal(t, []uint32{3}, got)

	got, err = r.Registered(0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCSIReceiver_OutOfRange(t *testing.T) {
	_, err := NewCSIReceiver(0, 1)
	require.ErrorIs(t, err, domain.ErrConfig)
	_, err = NewCSIReceiver(1, domain.MaxSPThreads+1)
	require.ErrorIs(t, err, domain.ErrConfig)

	r, err := NewCSIReceiver(2, 2)
	require.NoError(t, err)
	require.ErrorIs(t, r.Register(2, 0), domain.ErrConfig)
	require.ErrorIs(t, r.Register(0, 2), domain.ErrConfig)
	_, err = r.Registered(5)
	require.ErrorIs(t, err, domain.ErrConfig)
}
