package services

import (
	"encoding/base64"
	"strconv"

	"github.com/dlukins/caresync/internal/common"
)

// Change tokens are opaque to clients: base64 over the zone's change-log
// sequence. Anything that does not decode is treated as expired, which
// pushes the client into a clean full re-pull.

func encodeChangeToken(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

func decodeChangeToken(token string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, common.ErrChangeTokenExpired
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq < 0 {
		return 0, common.ErrChangeTokenExpired
	}
	return seq, nil
}
