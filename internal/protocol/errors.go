package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Control layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrOutOfBounds    = "E_OUT_OF_BOUNDS"
	ErrCellOccupied   = "E_CELL_OCCUPIED"
	ErrUnknownSpecies = "E_UNKNOWN_SPECIES"
	ErrBankNotFound   = "E_BANK_NOT_FOUND"
	ErrFactoryBusy    = "E_FACTORY_BUSY"
	ErrNotPaused      = "E_NOT_PAUSED"
	ErrRateLimit      = "E_RATE_LIMIT"
	ErrStale          = "E_STALE"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrOutOfBounds:     {},
	ErrCellOccupied:    {},
	ErrUnknownSpecies:  {},
	ErrBankNotFound:    {},
	ErrFactoryBusy:     {},
	ErrNotPaused:       {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
