// Package bot binds the Mock Bank conversation to Telegram updates.
package bot

import (
	"fmt"
	"time"

	tg "github.com/Gabrielbm2/chatbot-telegram/core/telegram"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/callbacks"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/keyboard"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/flow"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/present"

	tele "gopkg.in/telebot.v4"
)

// Bot translates updates into machine events and renders the outputs.
type Bot struct {
	machine *flow.Machine
	started time.Time
	now     func() time.Time
}

// New creates a Bot; started is the process start used by /uptime.
func New(m *flow.Machine, started time.Time) *Bot {
	return &Bot{machine: m, started: started, now: time.Now}
}

// Register binds the commands, one callback per action, and the text and
// media fallbacks.
func (b *Bot) Register(reg *tg.Registry) error {
	commands := []tg.Command{
		{Name: "/start", Aliases: []string{"menu"}, Description: "Open the Mock Bank menu", Handler: b.Start},
		{Name: "/uptime", Description: "Show how long the bot has been running", AdminOnly: true, Handler: b.Uptime},
	}
	for _, cmd := range commands {
		if err := reg.AddCommand(cmd); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}
	for _, a := range flow.Actions {
		if err := reg.AddCallback(string(a), b.Callback); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}
	reg.UnknownCallback = b.Callback
	reg.Text = b.Text
	reg.Media = b.Media
	return nil
}

// Start handles /start.
func (b *Bot) Start(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	out, err := b.machine.Start(tghelpers.Context(c), c.Sender().ID)
	return b.reply(c, out, false, err)
}

// Uptime handles /uptime.
func (b *Bot) Uptime(c tele.Context) error {
	secs := b.now().Sub(b.started).Seconds()
	return tghelpers.Send(c, fmt.Sprintf("Bot has been running for %.2f seconds.", secs), nil)
}

// Callback handles every inline button. Presses that do not decode to a
// known command are answered as an invalid selection.
func (b *Bot) Callback(c tele.Context) error {
	if c.Sender() == nil || c.Callback() == nil {
		return nil
	}
	ctx := tghelpers.Context(c)
	userID := c.Sender().ID

	cmd, err := flow.DecodeCallback(callbacks.ParseCallbackData(c.Callback()))
	if err != nil {
		return b.reply(c, b.machine.Unknown(ctx, userID, err), true, nil)
	}
	out, err := b.machine.HandleCallback(ctx, userID, cmd)
	return b.reply(c, out, true, err)
}

// Text handles free-text messages.
func (b *Bot) Text(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	out, err := b.machine.HandleText(tghelpers.Context(c), c.Sender().ID, c.Text())
	return b.reply(c, out, false, err)
}

// Media handles messages without text; they count as empty input.
func (b *Bot) Media(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	out, err := b.machine.HandleText(tghelpers.Context(c), c.Sender().ID, "")
	return b.reply(c, out, false, err)
}

// reply renders out and returns cause so the handler summary records it.
// Button presses edit their message in place, except for invalid selections
// which leave the pressed keyboard untouched.
func (b *Bot) reply(c tele.Context, out flow.Output, edit bool, cause error) error {
	view := present.Render(out)
	markup := Markup(view)

	var err error
	if edit && out.Intent != flow.IntentInvalidSelection {
		err = tghelpers.Edit(c, view.Text, markup)
	} else {
		err = tghelpers.Send(c, view.Text, markup)
	}
	if cause != nil {
		return cause
	}
	return err
}

// Markup converts view rows into an inline keyboard.
func Markup(v present.View) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(v.Rows))
	for _, row := range v.Rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, btn := range row {
			key, payload := btn.Command.Encode()
			r = append(r, keyboard.InlineBtn{Text: btn.Label, Unique: key, Data: payload})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}
