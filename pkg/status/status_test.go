package status

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestNilStatusIsOK(t *testing.T) {
	var s *Status
	require.True(t, s.OK())
	require.Equal(t, codes.OK, s.Code())
	require.Equal(t, "OK", s.String())
	require.NoError(t, s.Err())
}

func TestErrorStatus(t *testing.T) {
	s := Internal("Some error")
	require.False(t, s.OK())
	require.Equal(t, codes.Internal, s.Code())
	require.Equal(t, "Some error", s.Message())
	require.Equal(t, "Internal: Some error", s.String())
	require.Error(t, s.Err())
}

func TestNewWithOKCodeIsNil(t *testing.T) {
	require.Nil(t, New(codes.OK, "ignored"))
}
