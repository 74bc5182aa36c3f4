package telegram

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command served from the text route.
type Command struct {
	// Name carries the leading slash; one is added when missing.
	Name    string
	Aliases []string
	// Description is shown in the Telegram command menu.
	Description string
	// AdminOnly commands answer only telegram.admin_id when it is set and
	// stay out of the menu.
	AdminOnly bool
	Handler   tele.HandlerFunc
}

// Registry maps commands and callback uniques to handlers. It is filled
// before the bot starts and only read afterwards.
type Registry struct {
	commands  map[string]*Command
	menu      []*Command
	callbacks map[string]tele.HandlerFunc

	// UnknownCallback serves buttons whose unique has no handler.
	UnknownCallback tele.HandlerFunc
	// Text serves text that is not a registered command.
	Text tele.HandlerFunc
	// Media serves messages that carry no text.
	Media tele.HandlerFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]*Command),
		callbacks: make(map[string]tele.HandlerFunc),
	}
}

// AddCommand registers cmd under its name and every alias.
func (r *Registry) AddCommand(cmd Command) error {
	if cmd.Handler == nil || cmd.Description == "" {
		return fmt.Errorf("telegram: command %q needs a handler and a description", cmd.Name)
	}
	names := make([]string, 0, 1+len(cmd.Aliases))
	for _, n := range append([]string{cmd.Name}, cmd.Aliases...) {
		n = "/" + strings.TrimPrefix(strings.TrimSpace(n), "/")
		if n == "/" {
			return errors.New("telegram: empty command name")
		}
		if _, dup := r.commands[n]; dup || slices.Contains(names, n) {
			return fmt.Errorf("telegram: command %s already registered", n)
		}
		names = append(names, n)
	}

	c := &cmd
	c.Name = names[0]
	for _, n := range names {
		r.commands[n] = c
	}
	r.menu = append(r.menu, c)
	return nil
}

// AddCallback binds h to the callback unique.
func (r *Registry) AddCallback(unique string, h tele.HandlerFunc) error {
	if unique == "" || h == nil {
		return errors.New("telegram: callback needs a unique and a handler")
	}
	if _, dup := r.callbacks[unique]; dup {
		return fmt.Errorf("telegram: callback %s already registered", unique)
	}
	r.callbacks[unique] = h
	return nil
}

// Menu lists the commands published to the Telegram menu, by name.
func (r *Registry) Menu() []tele.Command {
	var out []tele.Command
	for _, c := range r.menu {
		if !c.AdminOnly {
			out = append(out, tele.Command{Text: c.Name, Description: c.Description})
		}
	}
	slices.SortFunc(out, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return out
}

// lookup resolves the command at the start of text, with or without a
// trailing @botname.
func (r *Registry) lookup(text string) (*Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	c, ok := r.commands[name]
	return c, ok
}
