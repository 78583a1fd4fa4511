package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session state.
	ErrBusy      = "E_BUSY"
	ErrNoPending = "E_NO_PENDING"
	ErrStale     = "E_STALE"

	// Directive/choice layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBadChoice  = "E_BAD_CHOICE"
	ErrNarrator   = "E_NARRATOR"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBusy:            {},
	ErrNoPending:       {},
	ErrStale:           {},
	ErrBadRequest:      {},
	ErrBadChoice:       {},
	ErrNarrator:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
