package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

var (
	// ErrCorruptSession is reported when a session is missing flow, amount or
	// method where the step requires them.
	ErrCorruptSession = &codedError{code: "corrupt_session", msg: "flow: flow, amount, or method is not defined"}
	// ErrUnknownCallback is reported for button payloads outside the command set.
	ErrUnknownCallback = &codedError{code: "unknown_callback", msg: "flow: unknown callback"}
	// ErrInvalidSelection is reported for a known button pressed at the wrong step.
	ErrInvalidSelection = &codedError{code: "invalid_selection", msg: "flow: selection is not valid at this step"}
)

// InputValidationError rejects free-text input; the session is left unchanged.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputValidationError) Code() string { return "input_validation" }

// InsufficientFundsError aborts a withdrawal whose bucket cannot cover it.
type InsufficientFundsError struct {
	Bucket    string
	Method    model.MethodType
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s balance: requested %s, available %s",
		e.Bucket, e.Requested.String(), e.Available.String())
}

func (e *InsufficientFundsError) Code() string { return "insufficient_funds" }

// ErrorCode returns the code of the first error in the chain exposing one.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return strings.ToLower(c.Code())
	}
	return "internal"
}
