package helpers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/sender"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/teletest"

	tele "gopkg.in/telebot.v4"
)

func TestSendAndEdit(t *testing.T) {
	srv := teletest.NewServer(t)
	bot := srv.NewBot(t)

	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = [][]tele.InlineButton{{*markup.Data("Deposit", "deposit").Inline()}}

	text := bot.NewContext(teletest.TextUpdate(1, 10, "hi"))
	require.NoError(t, Send(text, "Choose an option:", markup))

	cb := bot.NewContext(teletest.CallbackUpdate(2, 10, "deposit", ""))
	require.NoError(t, Edit(cb, "Enter the amount to deposit:", nil))

	sent := srv.CallsTo("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "Choose an option:", sent[0].Text())
	assert.Len(t, sent[0].Keyboard(), 1)
	assert.Equal(t, "deposit", markup.InlineKeyboard[0][0].Unique, "caller markup is not rewritten")

	edits := srv.CallsTo("editMessageText")
	require.Len(t, edits, 1)
	assert.Equal(t, "Enter the amount to deposit:", edits[0].Text())

	msgs, kb := Counters(text)
	assert.Equal(t, 1, msgs)
	assert.True(t, kb)
}

func TestSendThroughDispatcherKeepsOrder(t *testing.T) {
	srv := teletest.NewServer(t)
	bot := srv.NewBot(t)
	d := sender.NewDispatcher(sender.Options{Shards: 2})
	SetDispatcher(d)
	t.Cleanup(func() { SetDispatcher(nil) })

	c := bot.NewContext(teletest.TextUpdate(1, 42, "x"))
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, Send(c, msg, nil))
	}
	d.Close()

	sent := srv.CallsTo("sendMessage")
	require.Len(t, sent, 3)
	assert.Equal(t, "one", sent[0].Text())
	assert.Equal(t, "two", sent[1].Text())
	assert.Equal(t, "three", sent[2].Text())
}

func TestIsNotModified(t *testing.T) {
	assert.True(t, IsNotModified(errors.New("telegram: Bad Request: message is not modified (400)")))
	assert.False(t, IsNotModified(assert.AnError))
	assert.False(t, IsNotModified(nil))
}
