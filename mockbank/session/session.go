// Package session models the per-user conversation state of the bank bot.
//
// A Session is an immutable value. Its fields are only reachable through
// transition methods, each of which checks that it is called from the right
// stage, so a Session can never hold a field combination its stage does not
// allow. Sessions read back from storage go through the same checks in
// Unmarshal and fail with ErrCorrupt instead.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

var (
	// ErrIllegalTransition is returned when a transition is not allowed from the current stage.
	ErrIllegalTransition = errors.New("session: illegal transition")
	// ErrCorrupt marks a stored session whose fields do not fit its stage.
	ErrCorrupt = errors.New("session: corrupt state")
)

// Flow is the operation a session is executing.
type Flow string

const (
	FlowNone     Flow = ""
	FlowDeposit  Flow = "deposit"
	FlowWithdraw Flow = "withdraw"
)

// Kind maps the flow onto the transaction kind it commits.
func (f Flow) Kind() model.TxKind {
	if f == FlowWithdraw {
		return model.KindWithdraw
	}
	return model.KindDeposit
}

// Stage is the position inside a flow.
type Stage string

const (
	StageIdle             Stage = ""
	StageAmount           Stage = "amount"
	StageSelectMethod     Stage = "select_method"
	StageSelectMethodType Stage = "select_method_type"
	StageEnterDetails     Stage = "enter_details"
	StageSelectCrypto     Stage = "select_crypto"
	StageEnterAddress     Stage = "enter_address"
	StageConfirm          Stage = "confirm"
)

// Step returns the user-facing step number (1..4), 0 when idle.
func (s Stage) Step() int {
	switch s {
	case StageAmount:
		return 1
	case StageSelectMethod, StageSelectMethodType:
		return 2
	case StageEnterDetails, StageSelectCrypto, StageEnterAddress:
		return 3
	case StageConfirm:
		return 4
	}
	return 0
}

// Session is the conversation state of one user.
type Session struct {
	flow       Flow
	stage      Stage
	amount     int64
	methodType model.MethodType
	crypto     model.CryptoType
	details    string
	// txID is the id reserved for the commit of a confirmed session.
	txID      uuid.UUID
	updatedAt time.Time
}

// Idle returns the empty session (flow none).
func Idle() Session {
	return Session{}
}

// Begin starts flow at the amount step, discarding any previous state.
func Begin(flow Flow) (Session, error) {
	if flow != FlowDeposit && flow != FlowWithdraw {
		return Session{}, fmt.Errorf("%w: unknown flow %q", ErrIllegalTransition, flow)
	}
	return Session{flow: flow, stage: StageAmount}, nil
}

func (s Session) Flow() Flow                   { return s.flow }
func (s Session) Stage() Stage                 { return s.stage }
func (s Session) Step() int                    { return s.stage.Step() }
func (s Session) Amount() int64                { return s.amount }
func (s Session) MethodType() model.MethodType { return s.methodType }
func (s Session) Crypto() model.CryptoType     { return s.crypto }
func (s Session) UpdatedAt() time.Time         { return s.updatedAt }
func (s Session) TxID() uuid.UUID              { return s.txID }

// IsIdle reports whether no flow is active.
func (s Session) IsIdle() bool {
	return s.flow == FlowNone
}

// Method returns the selected payment method once the session reached the
// confirmation step.
func (s Session) Method() (model.PaymentMethod, bool) {
	if s.stage != StageConfirm {
		return model.PaymentMethod{}, false
	}
	return model.PaymentMethod{Type: s.methodType, Crypto: s.crypto, Details: s.details}, true
}

// Touched returns a copy stamped with now.
func (s Session) Touched(now time.Time) Session {
	s.updatedAt = now
	return s
}

// Expired reports whether the session is older than ttl. A non-positive ttl
// never expires.
func (s Session) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || s.updatedAt.IsZero() || s.IsIdle() {
		return false
	}
	return now.Sub(s.updatedAt) > ttl
}

func (s Session) illegal(op string) error {
	return fmt.Errorf("%w: %s from %s/%s", ErrIllegalTransition, op, s.flowName(), s.stageName())
}

func (s Session) flowName() string {
	if s.flow == FlowNone {
		return "none"
	}
	return string(s.flow)
}

func (s Session) stageName() string {
	if s.stage == StageIdle {
		return "idle"
	}
	return string(s.stage)
}

// WithAmount stores a positive amount and moves to method selection.
func (s Session) WithAmount(amount int64) (Session, error) {
	if s.stage != StageAmount {
		return s, s.illegal("amount")
	}
	if amount <= 0 {
		return s, fmt.Errorf("%w: amount must be positive", ErrIllegalTransition)
	}
	s.amount = amount
	s.stage = StageSelectMethod
	return s, nil
}

// AddingMethod enters the add-method branch of method selection.
func (s Session) AddingMethod() (Session, error) {
	if s.stage != StageSelectMethod {
		return s, s.illegal("add_method")
	}
	s.stage = StageSelectMethodType
	return s, nil
}

// WithMethodType records the type of the method being added. Fiat types ask
// for details next, crypto asks for the asset first.
func (s Session) WithMethodType(t model.MethodType) (Session, error) {
	if s.stage != StageSelectMethodType {
		return s, s.illegal("method_type")
	}
	if !t.Valid() {
		return s, fmt.Errorf("%w: unknown method type %q", ErrIllegalTransition, t)
	}
	s.methodType = t
	if t == model.MethodCrypto {
		s.stage = StageSelectCrypto
	} else {
		s.stage = StageEnterDetails
	}
	return s, nil
}

// WithCrypto records the asset of a crypto method being added.
func (s Session) WithCrypto(c model.CryptoType) (Session, error) {
	if s.stage != StageSelectCrypto {
		return s, s.illegal("crypto_type")
	}
	parsed, ok := model.ParseCryptoType(string(c))
	if !ok {
		return s, fmt.Errorf("%w: unknown crypto type %q", ErrIllegalTransition, c)
	}
	s.crypto = parsed
	s.stage = StageEnterAddress
	return s, nil
}

// WithMethod selects m and moves to confirmation. From the method list any
// complete method is accepted; from the add-method branch m must match the
// type (and asset) chosen earlier.
func (s Session) WithMethod(m model.PaymentMethod) (Session, error) {
	m = m.Normalize()
	switch s.stage {
	case StageSelectMethod:
	case StageEnterDetails:
		if m.Type != s.methodType {
			return s, fmt.Errorf("%w: method type %s does not match %s", ErrIllegalTransition, m.Type, s.methodType)
		}
	case StageEnterAddress:
		if m.Type != model.MethodCrypto || m.Crypto != s.crypto {
			return s, fmt.Errorf("%w: method %s does not match %s", ErrIllegalTransition, m.Label(), s.crypto)
		}
	default:
		return s, s.illegal("method")
	}
	if !m.Complete() {
		return s, fmt.Errorf("%w: incomplete method", ErrIllegalTransition)
	}
	s.methodType = m.Type
	s.crypto = m.Crypto
	s.details = m.Details
	s.stage = StageConfirm
	return s, nil
}

// WithTxID reserves the transaction id of the commit. A session keeps the
// first id it was given so a repeated confirmation reuses it.
func (s Session) WithTxID(id uuid.UUID) (Session, error) {
	if s.stage != StageConfirm {
		return s, s.illegal("reserve_tx")
	}
	if id == uuid.Nil {
		return s, fmt.Errorf("%w: nil transaction id", ErrIllegalTransition)
	}
	if s.txID != uuid.Nil && s.txID != id {
		return s, fmt.Errorf("%w: transaction %s already reserved", ErrIllegalTransition, s.txID)
	}
	s.txID = id
	return s, nil
}

// validate checks the field set against the stage; used on decode.
func (s Session) validate() error {
	if s.txID != uuid.Nil && s.stage != StageConfirm {
		return fmt.Errorf("%w: transaction id at stage %s", ErrCorrupt, s.stageName())
	}
	if s.flow == FlowNone {
		if s.stage != StageIdle || s.amount != 0 || s.methodType != "" || s.crypto != "" || s.details != "" {
			return fmt.Errorf("%w: fields set without a flow", ErrCorrupt)
		}
		return nil
	}
	if s.flow != FlowDeposit && s.flow != FlowWithdraw {
		return fmt.Errorf("%w: unknown flow %q", ErrCorrupt, s.flow)
	}

	needAmount := s.stage != StageAmount
	if needAmount && s.amount <= 0 {
		return fmt.Errorf("%w: stage %s without amount", ErrCorrupt, s.stageName())
	}
	if !needAmount && s.amount != 0 {
		return fmt.Errorf("%w: amount set before amount step", ErrCorrupt)
	}

	blank := s.methodType == "" && s.crypto == "" && s.details == ""
	switch s.stage {
	case StageAmount, StageSelectMethod, StageSelectMethodType:
		if !blank {
			return fmt.Errorf("%w: method fields at stage %s", ErrCorrupt, s.stage)
		}
	case StageEnterDetails:
		if !s.methodType.IsFiat() || s.crypto != "" || s.details != "" {
			return fmt.Errorf("%w: bad pending fiat method", ErrCorrupt)
		}
	case StageSelectCrypto:
		if s.methodType != model.MethodCrypto || s.crypto != "" || s.details != "" {
			return fmt.Errorf("%w: bad pending crypto method", ErrCorrupt)
		}
	case StageEnterAddress:
		if _, ok := model.ParseCryptoType(string(s.crypto)); s.methodType != model.MethodCrypto || !ok || s.details != "" {
			return fmt.Errorf("%w: bad pending crypto address", ErrCorrupt)
		}
	case StageConfirm:
		m := model.PaymentMethod{Type: s.methodType, Crypto: s.crypto, Details: s.details}
		if !m.Complete() {
			return fmt.Errorf("%w: confirmation without a complete method", ErrCorrupt)
		}
	default:
		return fmt.Errorf("%w: unknown stage %q", ErrCorrupt, s.stage)
	}
	return nil
}

// String is used in logs.
func (s Session) String() string {
	var b strings.Builder
	b.WriteString(s.flowName())
	b.WriteByte('/')
	b.WriteString(s.stageName())
	if s.amount > 0 {
		fmt.Fprintf(&b, " amount=%d", s.amount)
	}
	if s.methodType != "" {
		fmt.Fprintf(&b, " method=%s", s.methodType)
	}
	if s.crypto != "" {
		fmt.Fprintf(&b, " crypto=%s", s.crypto)
	}
	if s.txID != uuid.Nil {
		fmt.Fprintf(&b, " tx=%s", s.txID)
	}
	return b.String()
}
