package common

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy from which every rejection in the
// system is drawn. Callers should errors.As into *EngineError and switch
// on Kind rather than matching on strings.
type ErrorKind int

const (
	ValidationError ErrorKind = iota
	SessionStateError
	MarketClosedError
	PrivilegeError
	LiquidityError
	NotFoundError
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case ValidationError:
		return "invalid-order"
	case SessionStateError:
		return "rejected-session"
	case MarketClosedError:
		return "market-closed"
	case PrivilegeError:
		return "privilege-required"
	case LiquidityError:
		return "no-liquidity"
	case NotFoundError:
		return "not-found"
	case InternalError:
		return "internal-error"
	default:
		return "unknown"
	}
}

// EngineError wraps a rejection with its taxonomy Kind so the submitter can
// branch on it programmatically while still getting a human string via
// Error().
type EngineError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, common.ErrInsufficientFunds) style matching
// against the sentinel values below, since those are frequently wrapped
// into an *EngineError by the matching/portfolio engines.
func (e *EngineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewEngineError(kind ErrorKind, reason string, cause error) *EngineError {
	return &EngineError{Kind: kind, Reason: reason, Err: cause}
}

// Sentinel causes. These are the concrete reasons named in spec §4.2 and
// §7; wrap them in an *EngineError with the matching Kind rather than
// inventing new free-form strings.
var (
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrMissingLimitPrice   = errors.New("limit price required for this order type")
	ErrMissingStopPrice    = errors.New("stop price required for this order type")
	ErrUnknownSecurity     = errors.New("unknown security")
	ErrMarketClosed        = errors.New("market is closed")
	ErrSessionNotRunning   = errors.New("session is not in-progress")
	ErrNoLiquidity         = errors.New("no-liquidity")
	ErrFillOrKillShortfall = errors.New("fill-or-kill order could not be filled in full")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient position to sell short")
	ErrPrivilegeRequired   = errors.New("privilege required")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOwnerMismatch       = errors.New("order owned by a different user")
	ErrInvariantViolation  = errors.New("invariant violation")
)
