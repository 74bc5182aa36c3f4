// Package flow drives the per-user conversation: it decodes button commands
// and free text against the stored session, validates input, registers
// payment methods and commits transactions to the ledger.
//
// Every event returns an Output that can always be rendered. A non-nil error
// is returned alongside it only for infrastructure failures, after which the
// session is left as it was.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/ledger"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/methods"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/session"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/store"
)

const component = "flow"

// Machine is safe for concurrent use. Events of one user are serialised,
// events of different users run in parallel.
type Machine struct {
	users    store.Store
	sessions session.Store
	ledger   *ledger.Service
	methods  *methods.Registry
	locks    *keyedMutex
}

// NewMachine wires a Machine over the user store and a session store.
func NewMachine(users store.Store, sessions session.Store) *Machine {
	return &Machine{
		users:    users,
		sessions: sessions,
		ledger:   ledger.NewService(users),
		methods:  methods.NewRegistry(users),
		locks:    newKeyedMutex(),
	}
}

// Start handles /start: the user is created if needed and any flow is dropped.
func (m *Machine) Start(ctx context.Context, userID int64) (Output, error) {
	defer m.locks.Lock(userID)()

	if _, created, err := m.users.CreateUserIfAbsent(ctx, userID); err != nil {
		return tryLater(), fmt.Errorf("create user: %w", err)
	} else if created {
		logger.Info(ctx, component, "user.created", slog.Int64("user_id", userID))
	}
	if err := m.sessions.Clear(ctx, userID); err != nil {
		return tryLater(), fmt.Errorf("clear session: %w", err)
	}
	return Output{Intent: IntentMainMenu, Welcome: true}, nil
}

// HandleCallback applies a decoded button command.
func (m *Machine) HandleCallback(ctx context.Context, userID int64, cmd Command) (Output, error) {
	defer m.locks.Lock(userID)()

	if err := m.ensureUser(ctx, userID); err != nil {
		return tryLater(), err
	}

	switch cmd.Action {
	case ActionCheckBalance:
		bal, err := m.ledger.Balance(ctx, userID)
		if err != nil {
			return tryLater(), err
		}
		return Output{Intent: IntentBalance, Balance: bal}, nil
	case ActionDeposit:
		return m.begin(ctx, userID, session.FlowDeposit)
	case ActionWithdraw:
		return m.begin(ctx, userID, session.FlowWithdraw)
	case ActionBackToMenu:
		if err := m.sessions.Clear(ctx, userID); err != nil {
			return tryLater(), fmt.Errorf("clear session: %w", err)
		}
		return Output{Intent: IntentMainMenu}, nil
	case ActionCancel, ActionConfirmNo:
		if err := m.sessions.Clear(ctx, userID); err != nil {
			return tryLater(), fmt.Errorf("clear session: %w", err)
		}
		logger.Info(ctx, component, "flow.cancel", slog.Int64("user_id", userID))
		return Output{Intent: IntentCancelled}, nil
	}

	sess, err := m.sessions.Load(ctx, userID)
	if errors.Is(err, session.ErrCorrupt) {
		logger.Warn(ctx, component, "session.corrupt",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return corrupt(), fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if err != nil {
		return tryLater(), fmt.Errorf("load session: %w", err)
	}

	switch cmd.Action {
	case ActionAddMethod:
		next, err := sess.AddingMethod()
		if err != nil {
			return invalidSelection(ctx, sess, cmd), nil
		}
		return m.save(ctx, userID, next, Output{Intent: IntentMethodTypeChooser, Flow: next.Flow()})
	case ActionMethodType:
		next, err := sess.WithMethodType(cmd.MethodType)
		if err != nil {
			return invalidSelection(ctx, sess, cmd), nil
		}
		out := Output{Intent: IntentPromptDetails, Flow: next.Flow(), MethodType: cmd.MethodType}
		if cmd.MethodType == model.MethodCrypto {
			out.Intent = IntentCryptoChooser
		}
		return m.save(ctx, userID, next, out)
	case ActionCryptoType:
		next, err := sess.WithCrypto(cmd.Crypto)
		if err != nil {
			return invalidSelection(ctx, sess, cmd), nil
		}
		return m.save(ctx, userID, next, Output{Intent: IntentPromptAddress, Flow: next.Flow(), Crypto: next.Crypto()})
	case ActionUseMethod:
		return m.useMethod(ctx, userID, sess, cmd)
	case ActionConfirmYes:
		return m.commit(ctx, userID, sess)
	}

	logger.Warn(ctx, component, "flow.reject",
		slog.Int64("user_id", userID),
		slog.String("action", string(cmd.Action)),
		slog.String("err_code", ErrUnknownCallback.Code()),
	)
	return Output{Intent: IntentInvalidSelection, Reject: ErrUnknownCallback}, nil
}

// Unknown answers a button whose payload could not be decoded.
func (m *Machine) Unknown(ctx context.Context, userID int64, err error) Output {
	logger.Warn(ctx, component, "flow.reject",
		slog.Int64("user_id", userID),
		slog.String("err_code", ErrorCode(err)),
		slog.String("err", err.Error()),
	)
	return Output{Intent: IntentInvalidSelection, Reject: err}
}

// HandleText applies a free-text message.
func (m *Machine) HandleText(ctx context.Context, userID int64, text string) (Output, error) {
	defer m.locks.Lock(userID)()

	if err := m.ensureUser(ctx, userID); err != nil {
		return tryLater(), err
	}
	sess, err := m.sessions.Load(ctx, userID)
	if errors.Is(err, session.ErrCorrupt) {
		return corrupt(), fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if err != nil {
		return tryLater(), fmt.Errorf("load session: %w", err)
	}

	switch sess.Stage() {
	case session.StageIdle:
		return Output{Intent: IntentMainMenu}, nil
	case session.StageAmount:
		return m.enterAmount(ctx, userID, sess, text)
	case session.StageEnterDetails:
		return m.enterMethod(ctx, userID, sess, model.PaymentMethod{Type: sess.MethodType(), Details: text})
	case session.StageEnterAddress:
		return m.enterMethod(ctx, userID, sess, model.PaymentMethod{
			Type: model.MethodCrypto, Crypto: sess.Crypto(), Details: text,
		})
	}
	return Output{Intent: IntentUseButtons, Flow: sess.Flow()}, nil
}

func (m *Machine) ensureUser(ctx context.Context, userID int64) error {
	_, created, err := m.users.CreateUserIfAbsent(ctx, userID)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if created {
		logger.Info(ctx, component, "user.created", slog.Int64("user_id", userID))
	}
	return nil
}

func (m *Machine) begin(ctx context.Context, userID int64, f session.Flow) (Output, error) {
	sess, err := session.Begin(f)
	if err != nil {
		return tryLater(), err
	}
	return m.save(ctx, userID, sess, Output{Intent: IntentPromptAmount, Flow: f})
}

func (m *Machine) save(ctx context.Context, userID int64, sess session.Session, out Output) (Output, error) {
	if err := m.sessions.Save(ctx, userID, sess); err != nil {
		return tryLater(), fmt.Errorf("save session: %w", err)
	}
	logger.Debug(ctx, component, "flow.step",
		slog.Int64("user_id", userID),
		slog.String("session", sess.String()),
		slog.String("intent", string(out.Intent)),
	)
	return out, nil
}

func (m *Machine) enterAmount(ctx context.Context, userID int64, sess session.Session, text string) (Output, error) {
	amount, verr := parseAmount(text)
	if verr != nil {
		return reject(ctx, userID, sess, Output{Intent: IntentInvalidAmount, Flow: sess.Flow(), Reject: verr}), nil
	}

	if sess.Flow() == session.FlowWithdraw {
		bal, err := m.ledger.Balance(ctx, userID)
		if err != nil {
			return tryLater(), err
		}
		if decimal.NewFromInt(amount).GreaterThan(bal.Total) {
			verr := &InputValidationError{Field: "amount", Reason: "exceeds total balance"}
			return reject(ctx, userID, sess, Output{
				Intent: IntentAmountExceedsBalance, Flow: sess.Flow(), Amount: amount, Balance: bal, Reject: verr,
			}), nil
		}
	}

	next, err := sess.WithAmount(amount)
	if err != nil {
		return tryLater(), err
	}
	list, err := m.methods.List(ctx, userID)
	if err != nil {
		return tryLater(), err
	}
	return m.save(ctx, userID, next, Output{Intent: IntentMethodList, Flow: next.Flow(), Amount: amount, Methods: list})
}

func (m *Machine) enterMethod(ctx context.Context, userID int64, sess session.Session, pm model.PaymentMethod) (Output, error) {
	if err := methods.Validate(pm); err != nil {
		verr := &InputValidationError{Field: "details", Reason: strings.TrimPrefix(err.Error(), methods.ErrInvalidDetails.Error()+": ")}
		return reject(ctx, userID, sess, Output{
			Intent: IntentInvalidDetails, Flow: sess.Flow(), MethodType: pm.Type, Crypto: pm.Crypto, Reject: verr,
		}), nil
	}
	pm = pm.Normalize()
	if _, err := m.methods.AddIfUnique(ctx, userID, pm); err != nil {
		return tryLater(), fmt.Errorf("add method: %w", err)
	}
	next, err := sess.WithMethod(pm)
	if err != nil {
		return tryLater(), err
	}
	return m.save(ctx, userID, next, confirmOutput(next))
}

func (m *Machine) useMethod(ctx context.Context, userID int64, sess session.Session, cmd Command) (Output, error) {
	if sess.Stage() != session.StageSelectMethod {
		return invalidSelection(ctx, sess, cmd), nil
	}
	list, err := m.methods.List(ctx, userID)
	if err != nil {
		return tryLater(), err
	}
	if cmd.Index < 0 || cmd.Index >= len(list) {
		return invalidSelection(ctx, sess, cmd), nil
	}
	next, err := sess.WithMethod(list[cmd.Index])
	if err != nil {
		return invalidSelection(ctx, sess, cmd), nil
	}
	return m.save(ctx, userID, next, confirmOutput(next))
}

// commit appends the confirmed transaction. The transaction id is reserved
// in the session before the append, so a confirmation repeated after a failed
// clear finds its entry in the ledger instead of appending a second one.
func (m *Machine) commit(ctx context.Context, userID int64, sess session.Session) (Output, error) {
	method, ok := sess.Method()
	if sess.IsIdle() || !ok || sess.Amount() <= 0 {
		logger.Warn(ctx, component, "flow.reject",
			slog.Int64("user_id", userID),
			slog.String("session", sess.String()),
			slog.String("err_code", ErrCorruptSession.Code()),
		)
		return Output{Intent: IntentCorruptSession, Flow: sess.Flow(), Reject: ErrCorruptSession}, nil
	}
	amount := decimal.NewFromInt(sess.Amount())
	kind := sess.Flow().Kind()
	out := Output{Intent: IntentCompleted, Flow: sess.Flow(), Amount: sess.Amount(), Method: method}

	if sess.TxID() == uuid.Nil {
		reserved, err := sess.WithTxID(uuid.New())
		if err != nil {
			return tryLater(), err
		}
		if err := m.sessions.Save(ctx, userID, reserved); err != nil {
			return tryLater(), fmt.Errorf("save session: %w", err)
		}
		sess = reserved
	}

	txs, err := m.users.GetTransactions(ctx, userID)
	if err != nil {
		return tryLater(), fmt.Errorf("get transactions: %w", err)
	}
	if slices.ContainsFunc(txs, func(t model.Transaction) bool { return t.ID == sess.TxID() }) {
		logger.Info(ctx, component, "flow.commit",
			slog.String("status", "replay"),
			slog.Int64("user_id", userID),
			slog.String("tx_id", sess.TxID().String()),
		)
		return m.settle(ctx, userID, sess, out)
	}

	if kind == model.KindWithdraw {
		bal := ledger.Compute(txs)
		bucket, available := bal.Bucket(method.Type, method.Currency())
		if amount.GreaterThan(available) {
			ferr := &InsufficientFundsError{Bucket: bucket, Method: method.Type, Requested: amount, Available: available}
			logger.Info(ctx, component, "flow.reject",
				slog.Int64("user_id", userID),
				slog.String("session", sess.String()),
				slog.String("bucket", bucket),
				slog.String("err_code", ferr.Code()),
			)
			return Output{
				Intent: IntentInsufficientFunds, Flow: sess.Flow(), Amount: sess.Amount(),
				Method: method, Balance: bal, Reject: ferr,
			}, nil
		}
	}

	tx, err := m.users.AddTransaction(ctx, model.NewTransaction{
		ID:       sess.TxID(),
		UserID:   userID,
		Kind:     kind,
		Method:   method.Type,
		Currency: method.Currency(),
		Amount:   amount,
	})
	if err != nil {
		logger.Error(ctx, component, "flow.commit",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("flow", string(sess.Flow())),
			slog.String("err", err.Error()),
		)
		return tryLater(), fmt.Errorf("add transaction: %w", err)
	}

	m.refreshBalance(ctx, userID)

	logger.Info(ctx, component, "flow.commit",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("flow", string(sess.Flow())),
		slog.Int64("amount", sess.Amount()),
		slog.String("method", string(method.Type)),
		slog.String("currency", tx.Currency),
		slog.String("tx_id", tx.ID.String()),
	)
	return m.settle(ctx, userID, sess, out)
}

// settle drops the session of a stored commit. A failed clear leaves the
// reserved id in place, so the next confirmation replays instead of appending.
func (m *Machine) settle(ctx context.Context, userID int64, sess session.Session, out Output) (Output, error) {
	if err := m.sessions.Clear(ctx, userID); err != nil {
		logger.Warn(ctx, component, "flow.commit.unsettled",
			slog.Int64("user_id", userID),
			slog.String("tx_id", sess.TxID().String()),
			slog.String("err", err.Error()),
		)
		return out, fmt.Errorf("clear session after commit: %w", err)
	}
	return out, nil
}

// refreshBalance rewrites the cached balance from the ledger. Failures are
// logged only; the ledger stays authoritative.
func (m *Machine) refreshBalance(ctx context.Context, userID int64) {
	bal, err := m.ledger.Balance(ctx, userID)
	if err == nil {
		err = m.users.UpdateUser(ctx, userID, store.UserUpdate{Balance: &bal.Total})
	}
	if err != nil {
		logger.Warn(ctx, component, "balance.refresh",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

// parseAmount accepts a positive integer made of ASCII digits only.
func parseAmount(text string) (int64, *InputValidationError) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, &InputValidationError{Field: "amount", Reason: "empty"}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, &InputValidationError{Field: "amount", Reason: "not a positive integer"}
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &InputValidationError{Field: "amount", Reason: "too large"}
	}
	if n <= 0 {
		return 0, &InputValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	return n, nil
}

func confirmOutput(sess session.Session) Output {
	method, _ := sess.Method()
	return Output{Intent: IntentConfirm, Flow: sess.Flow(), Amount: sess.Amount(), Method: method}
}

func reject(ctx context.Context, userID int64, sess session.Session, out Output) Output {
	logger.Info(ctx, component, "flow.reject",
		slog.Int64("user_id", userID),
		slog.String("session", sess.String()),
		slog.String("intent", string(out.Intent)),
		slog.String("err_code", ErrorCode(out.Reject)),
	)
	return out
}

func invalidSelection(ctx context.Context, sess session.Session, cmd Command) Output {
	logger.Info(ctx, component, "flow.reject",
		slog.String("session", sess.String()),
		slog.String("action", string(cmd.Action)),
		slog.String("err_code", ErrInvalidSelection.Code()),
	)
	return Output{Intent: IntentInvalidSelection, Flow: sess.Flow(), Reject: ErrInvalidSelection}
}

func tryLater() Output {
	return Output{Intent: IntentTryLater}
}

func corrupt() Output {
	return Output{Intent: IntentCorruptSession, Reject: ErrCorruptSession}
}
