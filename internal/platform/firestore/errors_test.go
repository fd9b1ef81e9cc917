package firestore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	t.Parallel()

	notFound := WrapError("shopSessions.get", status.Error(codes.NotFound, "missing"))
	var ferr *Error
	require.ErrorAs(t, notFound, &ferr)
	require.True(t, ferr.IsNotFound())
	require.False(t, ferr.IsUnavailable())
	require.Contains(t, ferr.Error(), "shopSessions.get")

	require.ErrorAs(t, WrapError("op", status.Error(codes.Aborted, "contention")), &ferr)
	require.True(t, ferr.IsConflict())

	require.ErrorAs(t, WrapError("op", status.Error(codes.Unavailable, "down")), &ferr)
	require.True(t, ferr.IsUnavailable())
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	t.Parallel()

	require.NoError(t, WrapError("op", nil))
	require.Same(t, context.Canceled, WrapError("op", status.Error(codes.Canceled, "gone")))
	require.ErrorIs(t, WrapError("op", context.DeadlineExceeded), context.DeadlineExceeded)

	inner := &Error{Op: "first", Code: codes.NotFound, Err: errors.New("missing")}
	require.Same(t, inner, WrapError("second", inner))
}

func TestProviderRequiresProject(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	t.Setenv(envEmulatorHost, "")

	p := &Provider{dialTimeout: defaultDialTimeout}
	_, err := p.Client(context.Background())
	require.EqualError(t, err, "firestore: project id is required")

	require.NoError(t, p.Close(context.Background()))
	_, err = p.Client(context.Background())
	require.ErrorIs(t, err, ErrProviderClosed)
}
