package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorCountMismatch is returned when the event payload, procurement store
	// and basic store disagree on how many lines an order has. The event is
	// redelivered until the stores converge.
	ErrorCountMismatch = errors.New("order line count mismatch")

	// ErrorStatusConflict means an event arrived before the procurement store
	// recorded the lifecycle step it implies. Redelivery retries once the
	// store catches up.
	ErrorStatusConflict = errors.New("order status conflict")

	ErrorValidation = errors.New("validation failed")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
