package checkout

import "errors"

// Validation errors are detected before any persistence call and never
// partially mutate state.
var (
	ErrInvalidIdentity         = errors.New("identity is missing or not a valid user id")
	ErrEmptyCart               = errors.New("cart has no resolvable items to check out")
	ErrMissingAddress          = errors.New("delivery address is required")
	ErrTermsNotAccepted        = errors.New("terms and conditions must be accepted")
	ErrMissingPaymentReference = errors.New("payment reference is required for this payment method")
	ErrUnknownPaymentMethod    = errors.New("unknown payment method")
	ErrLineItemUnresolvable    = errors.New("cart line refers to a product no longer in the catalog")
	ErrOrderPersistenceFailure = errors.New("order could not be persisted")
)
