package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors classifying every ledger failure. Callers match them with errors.Is.
var (
	ErrNotFound                  = errors.New("ledger: not found")
	ErrInvalidState              = errors.New("ledger: invalid state")
	ErrInvalidItem               = errors.New("ledger: invalid item")
	ErrInsufficientStock         = errors.New("ledger: insufficient stock")
	ErrInsufficientFarmerBalance = errors.New("ledger: insufficient farmer balance")
	ErrInsufficientFunds         = errors.New("ledger: insufficient funds")
	ErrExceedsRemaining          = errors.New("ledger: quantity exceeds remaining")
	ErrExceedsBalance            = errors.New("ledger: amount exceeds contract balance")
	ErrExceedsDebt               = errors.New("ledger: amount exceeds voucher debt")
	ErrIrreversible              = errors.New("ledger: operation is irreversible")
	ErrConflict                  = errors.New("ledger: concurrent update conflict")
)

// AmountError is returned when a requested quantity or amount does not fit into
// what is available. Kind is one of the sentinel errors above.
type AmountError struct {
	Kind      error
	Subject   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("%v: %s requested %s, available %s",
		e.Kind, e.Subject, e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *AmountError) Unwrap() error { return e.Kind }

func amountErr(kind error, subject string, requested, available decimal.Decimal) error {
	return &AmountError{Kind: kind, Subject: subject, Requested: requested, Available: available}
}

func notFound(entity string, id int) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func invalidItem(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidItem, fmt.Sprintf(format, args...))
}

// AsAmountError extracts the requested/available detail from err, if any.
func AsAmountError(err error) (*AmountError, bool) {
	var ae *AmountError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
