package services

import (
	"testing"

	"github.com/dlukins/caresync/internal/common"
	"github.com/stretchr/testify/require"
)

func TestChangeTokenRoundTrip(t *testing.T) {
	for _, seq := range []int64{0, 1, 42, 1 << 40} {
		got, err := decodeChangeToken(encodeChangeToken(seq))
		require.NoError(t, err)
		require.Equal(t, seq, got)
	}
}

func TestChangeTokenUndecodable(t *testing.T) {
	for _, tok := range []string{"???", "bm90LWEtbnVtYmVy", encodeChangeToken(-1)} {
		_, err := decodeChangeToken(tok)
		require.ErrorIs(t, err, common.ErrChangeTokenExpired, tok)
	}
}
