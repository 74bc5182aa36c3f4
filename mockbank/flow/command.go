package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

// Action is the closed set of button commands.
type Action string

const (
	ActionCheckBalance Action = "check_balance"
	ActionDeposit      Action = "deposit"
	ActionWithdraw     Action = "withdraw"
	ActionCancel       Action = "cancel"
	ActionBackToMenu   Action = "back_to_menu"
	ActionAddMethod    Action = "add_payment_method"
	ActionMethodType   Action = "method_type"
	ActionCryptoType   Action = "crypto_type"
	ActionUseMethod    Action = "use_method"
	ActionConfirmYes   Action = "confirm_yes"
	ActionConfirmNo    Action = "confirm_no"
)

// Actions lists every action; the transport registers one callback per entry.
var Actions = []Action{
	ActionCheckBalance, ActionDeposit, ActionWithdraw, ActionCancel, ActionBackToMenu,
	ActionAddMethod, ActionMethodType, ActionCryptoType, ActionUseMethod,
	ActionConfirmYes, ActionConfirmNo,
}

// Command is a decoded button press.
type Command struct {
	Action     Action
	MethodType model.MethodType // ActionMethodType
	Crypto     model.CryptoType // ActionCryptoType
	Index      int              // ActionUseMethod
}

// Cmd builds a payload-less command.
func Cmd(a Action) Command { return Command{Action: a} }

// ChooseMethodType builds the method type choice.
func ChooseMethodType(t model.MethodType) Command {
	return Command{Action: ActionMethodType, MethodType: t}
}

// ChooseCrypto builds the crypto asset choice.
func ChooseCrypto(c model.CryptoType) Command {
	return Command{Action: ActionCryptoType, Crypto: c}
}

// UseMethod selects the saved method at position i.
func UseMethod(i int) Command {
	return Command{Action: ActionUseMethod, Index: i}
}

// Encode returns the callback key and payload for c.
func (c Command) Encode() (string, string) {
	switch c.Action {
	case ActionMethodType:
		return string(c.Action), string(c.MethodType)
	case ActionCryptoType:
		return string(c.Action), string(c.Crypto)
	case ActionUseMethod:
		return string(c.Action), strconv.Itoa(c.Index)
	}
	return string(c.Action), ""
}

// DecodeCallback maps a callback key and payload onto a Command. Anything
// outside the closed set returns ErrUnknownCallback.
func DecodeCallback(key, payload string) (Command, error) {
	key = strings.TrimSpace(key)
	payload = strings.TrimSpace(payload)
	a := Action(key)
	switch a {
	case ActionCheckBalance, ActionDeposit, ActionWithdraw, ActionCancel, ActionBackToMenu,
		ActionAddMethod, ActionConfirmYes, ActionConfirmNo:
		if payload != "" {
			return Command{}, fmt.Errorf("%w: %s takes no payload", ErrUnknownCallback, key)
		}
		return Cmd(a), nil
	case ActionMethodType:
		t, ok := model.ParseMethodType(payload)
		if !ok {
			return Command{}, fmt.Errorf("%w: method type %q", ErrUnknownCallback, payload)
		}
		return ChooseMethodType(t), nil
	case ActionCryptoType:
		c, ok := model.ParseCryptoType(payload)
		if !ok {
			return Command{}, fmt.Errorf("%w: crypto type %q", ErrUnknownCallback, payload)
		}
		return ChooseCrypto(c), nil
	case ActionUseMethod:
		i, err := strconv.Atoi(payload)
		if err != nil || i < 0 {
			return Command{}, fmt.Errorf("%w: method index %q", ErrUnknownCallback, payload)
		}
		return UseMethod(i), nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCallback, key)
}
