package flow

import (
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/ledger"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/session"
)

// Intent tells the presentation layer what to show next.
type Intent string

const (
	IntentMainMenu             Intent = "main_menu"
	IntentBalance              Intent = "balance"
	IntentPromptAmount         Intent = "prompt_amount"
	IntentInvalidAmount        Intent = "invalid_amount"
	IntentAmountExceedsBalance Intent = "amount_exceeds_balance"
	IntentMethodList           Intent = "method_list"
	IntentMethodTypeChooser    Intent = "method_type_chooser"
	IntentPromptDetails        Intent = "prompt_details"
	IntentCryptoChooser        Intent = "crypto_chooser"
	IntentPromptAddress        Intent = "prompt_address"
	IntentInvalidDetails       Intent = "invalid_details"
	IntentConfirm              Intent = "confirm"
	IntentCompleted            Intent = "completed"
	IntentInsufficientFunds    Intent = "insufficient_funds"
	IntentCancelled            Intent = "cancelled"
	IntentCorruptSession       Intent = "corrupt_session"
	IntentTryLater             Intent = "try_later"
	IntentInvalidSelection     Intent = "invalid_selection"
	IntentUseButtons           Intent = "use_buttons"
)

// Output is the result of one event. Only the fields the intent needs are set.
type Output struct {
	Intent     Intent
	Flow       session.Flow
	Amount     int64
	Balance    ledger.Balance
	Methods    []model.PaymentMethod
	Method     model.PaymentMethod
	MethodType model.MethodType
	Crypto     model.CryptoType
	// Welcome marks the main menu shown on /start.
	Welcome bool
	// Reject carries the typed error behind a rejected input or selection.
	Reject error
}
