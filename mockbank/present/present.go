// Package present turns flow outputs into message text and button rows.
// It knows nothing about the transport; the caller decides whether a view
// replaces the previous message or is sent as a new one.
package present

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/flow"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/ledger"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/session"
)

// Button is a labelled command.
type Button struct {
	Label   string
	Command flow.Command
}

// View is a rendered prompt.
type View struct {
	Text string
	Rows [][]Button
}

const farewell = "Thank you for using Mock Bank. Goodbye!"

var (
	btnCheckBalance = Button{"Check Balance", flow.Cmd(flow.ActionCheckBalance)}
	btnDeposit      = Button{"Deposit", flow.Cmd(flow.ActionDeposit)}
	btnWithdraw     = Button{"Withdraw", flow.Cmd(flow.ActionWithdraw)}
	btnCancel       = Button{"Cancel", flow.Cmd(flow.ActionCancel)}
	btnBackToMenu   = Button{"Back to Main Menu", flow.Cmd(flow.ActionBackToMenu)}
	btnMainMenu     = Button{"Main Menu", flow.Cmd(flow.ActionBackToMenu)}
	btnAddMethod    = Button{"Add Payment Method", flow.Cmd(flow.ActionAddMethod)}
	btnYes          = Button{"Yes", flow.Cmd(flow.ActionConfirmYes)}
	btnNo           = Button{"No", flow.Cmd(flow.ActionConfirmNo)}
)

var methodTypeLabels = map[model.MethodType]string{
	model.MethodBankTransfer: "Bank Transfer",
	model.MethodPayPal:       "Paypal",
	model.MethodCrypto:       "Crypto",
}

// Render maps out onto a View.
func Render(out flow.Output) View {
	switch out.Intent {
	case flow.IntentMainMenu:
		text := "Choose an option:"
		if out.Welcome {
			text = "Welcome to Mock Bank! Choose an option:"
		}
		return View{Text: text, Rows: Columns(1, btnCheckBalance, btnDeposit, btnWithdraw, btnCancel)}

	case flow.IntentBalance:
		return View{Text: BalanceText(out.Balance), Rows: Columns(1, btnBackToMenu)}

	case flow.IntentPromptAmount:
		return View{Text: fmt.Sprintf("Enter the amount to %s:", out.Flow), Rows: Columns(1, btnCancel)}

	case flow.IntentInvalidAmount:
		return View{Text: fmt.Sprintf("Enter a valid positive integer for %s amount.", flowNoun(out.Flow))}

	case flow.IntentAmountExceedsBalance:
		return View{Text: "Withdrawal amount exceeds your total balance. Enter a valid amount."}

	case flow.IntentMethodList:
		buttons := make([]Button, 0, len(out.Methods)+2)
		for i, m := range out.Methods {
			buttons = append(buttons, Button{Label: m.Label(), Command: flow.UseMethod(i)})
		}
		buttons = append(buttons, btnAddMethod, btnCancel)
		return View{Text: "Select a payment method:", Rows: Columns(1, buttons...)}

	case flow.IntentMethodTypeChooser:
		buttons := make([]Button, 0, len(model.MethodTypes)+1)
		for _, t := range model.MethodTypes {
			buttons = append(buttons, Button{Label: methodTypeLabels[t], Command: flow.ChooseMethodType(t)})
		}
		buttons = append(buttons, btnCancel)
		return View{Text: "Choose a method type:", Rows: Columns(1, buttons...)}

	case flow.IntentPromptDetails:
		return View{Text: detailsPrompt(out.MethodType), Rows: Columns(1, btnCancel)}

	case flow.IntentCryptoChooser:
		buttons := make([]Button, 0, len(model.CryptoTypes)+1)
		for _, c := range model.CryptoTypes {
			buttons = append(buttons, Button{Label: string(c), Command: flow.ChooseCrypto(c)})
		}
		buttons = append(buttons, btnCancel)
		return View{Text: "Choose a Crypto type:", Rows: Columns(1, buttons...)}

	case flow.IntentPromptAddress:
		return View{Text: fmt.Sprintf("Enter your %s address:", out.Crypto), Rows: Columns(1, btnCancel)}

	case flow.IntentInvalidDetails:
		return View{Text: invalidDetails(out), Rows: Columns(1, btnCancel)}

	case flow.IntentConfirm:
		text := fmt.Sprintf("Confirm %s of %d using %s?", out.Flow, out.Amount, out.Method.Label())
		return View{Text: text, Rows: Columns(2, btnYes, btnNo)}

	case flow.IntentCompleted:
		verb := "Deposited"
		if out.Flow == session.FlowWithdraw {
			verb = "Withdrawn"
		}
		return View{Text: fmt.Sprintf("%s %d using %s. %s", verb, out.Amount, out.Method.Type, farewell)}

	case flow.IntentInsufficientFunds:
		return View{Text: insufficientText(out), Rows: Columns(1, btnWithdraw, btnMainMenu)}

	case flow.IntentCancelled:
		return View{Text: "Operation cancelled. " + farewell}

	case flow.IntentCorruptSession:
		return View{Text: "An error occurred: Flow, amount, or method is not defined.", Rows: Columns(1, btnMainMenu)}

	case flow.IntentInvalidSelection:
		return View{Text: "Invalid selection. Please choose an option from the menu.", Rows: Columns(1, btnMainMenu)}

	case flow.IntentUseButtons:
		return View{Text: "Please use the buttons to continue.", Rows: Columns(1, btnCancel)}
	}
	return View{Text: "An error occurred. Please try again later.", Rows: Columns(1, btnMainMenu)}
}

// BalanceText formats a balance with two decimals, crypto buckets sorted by code.
func BalanceText(b ledger.Balance) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fiat Balance (Bank & PayPal): $%s\n\nCrypto Balances:\n", b.Fiat.StringFixed(2))
	for _, code := range b.Currencies() {
		fmt.Fprintf(&sb, "- %s: %s\n", code, b.Crypto[code].StringFixed(2))
	}
	fmt.Fprintf(&sb, "\nTotal Balance: $%s", b.Total.StringFixed(2))
	return sb.String()
}

// Columns lays buttons out n per row.
func Columns(n int, buttons ...Button) [][]Button {
	if n < 1 {
		n = 1
	}
	rows := make([][]Button, 0, (len(buttons)+n-1)/n)
	for i := 0; i < len(buttons); i += n {
		end := min(i+n, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	return rows
}

func flowNoun(f session.Flow) string {
	if f == session.FlowWithdraw {
		return "withdrawal"
	}
	return "deposit"
}

func detailsPrompt(t model.MethodType) string {
	if t == model.MethodPayPal {
		return "Enter your Paypal e-mail address:"
	}
	return "Enter the name of the bank:"
}

func invalidDetails(out flow.Output) string {
	switch out.MethodType {
	case model.MethodPayPal:
		return "That does not look like an e-mail address. Enter your Paypal e-mail address:"
	case model.MethodCrypto:
		return fmt.Sprintf("That is not a valid address. Enter your %s address:", out.Crypto)
	}
	return "That is not a valid bank name. Enter the name of the bank:"
}

func insufficientText(out flow.Output) string {
	var ferr *flow.InsufficientFundsError
	if errors.As(out.Reject, &ferr) && ferr.Bucket != ledger.FiatBucket {
		return fmt.Sprintf("Insufficient %s balance. Withdrawal denied.", ferr.Bucket)
	}
	return fmt.Sprintf("Insufficient fiat balance for %s. Withdrawal denied.", out.Method.Type)
}
