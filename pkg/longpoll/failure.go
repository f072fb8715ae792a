package longpoll

import (
	"strconv"

	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
)

// FailureCode classifies a "failed" long-poll reply.
type FailureCode int

const (
	// FailureNone means the reply carries a batch of updates.
	FailureNone FailureCode = 0
	// FailureOutdatedCursor means the history behind ts is gone; the reply
	// carries a fresh ts to continue from.
	FailureOutdatedCursor FailureCode = 1
	// FailureKeyExpired means the session key must be re-requested.
	FailureKeyExpired FailureCode = 2
	// FailureSessionLost means server, key and ts must all be replaced.
	FailureSessionLost FailureCode = 3
)

func (c FailureCode) String() string {
	switch c {
	case FailureNone:
		return "none"
	case FailureOutdatedCursor:
		return "outdated_cursor"
	case FailureKeyExpired:
		return "key_expired"
	case FailureSessionLost:
		return "session_lost"
	default:
		return "unknown_" + strconv.Itoa(int(c))
	}
}

// Classify maps a long-poll reply to the recovery it needs. Any code the
// bot does not know, and a code 1 without a usable ts, are treated as a
// lost session.
func Classify(resp *vkapi.LongPollResponse) FailureCode {
	if resp.Failed == nil {
		return FailureNone
	}
	switch code := FailureCode(*resp.Failed); code {
	case FailureOutdatedCursor:
		if resp.TS == "" {
			return FailureSessionLost
		}
		return FailureOutdatedCursor
	case FailureKeyExpired:
		return FailureKeyExpired
	default:
		return FailureSessionLost
	}
}
