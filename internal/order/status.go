package order

// Status is the fulfillment-side lifecycle stage of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// PaymentStatus is the payment-side lifecycle stage, tracked
// independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// statusTransitions is the forward-only fulfillment table. Cancelled
// and refunded are terminal; a completed order can only move to
// refunded.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// paymentTransitions is the forward-only payment table. Paid never
// regresses to pending; a failed payment may be retried.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentPaid:     {PaymentRefunded},
	PaymentFailed:   {PaymentPending},
	PaymentRefunded: {},
}

// CanTransition reports whether the fulfillment table allows from -> to.
// Setting the same value again is always allowed.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether the payment table allows from -> to.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	if s == to {
		return true
	}
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the fulfillment stages the admin surface offers
// from the current one. Always a copy.
func (s Status) NextStatuses() []Status {
	next := statusTransitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// NextPaymentStatuses returns the payment stages the admin surface
// offers from the current one.
func (s PaymentStatus) NextPaymentStatuses() []PaymentStatus {
	next := paymentTransitions[s]
	out := make([]PaymentStatus, len(next))
	copy(out, next)
	return out
}

// AllStatuses lists every fulfillment stage. The non-strict update path
// accepts any of these regardless of the current stage.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusRefunded}
}

// AllPaymentStatuses lists every payment stage.
func AllPaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded}
}
