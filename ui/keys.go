package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/dgnsrekt/recite/internal/navbridge"
)

type keyMap struct {
	Toggle key.Binding
	Prev   key.Binding
	Next   key.Binding

	PlayFromTop key.Binding
	Stop        key.Binding
	Resume      key.Binding
	Slower      key.Binding
	Faster      key.Binding
	Lower       key.Binding
	Higher      key.Binding

	Copy   key.Binding
	Edit   key.Binding
	Reload key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func newKeyMap(nav navbridge.KeyMap) keyMap {
	return keyMap{
		Toggle: key.NewBinding(key.WithKeys(nav.Toggle), key.WithHelp(nav.Toggle, "play/stop")),
		Prev:   key.NewBinding(key.WithKeys(nav.Prev), key.WithHelp(nav.Prev, "previous document")),
		Next:   key.NewBinding(key.WithKeys(nav.Next), key.WithHelp(nav.Next, "next document")),

		PlayFromTop: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "read from top line")),
		Stop:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Resume:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		Slower:      key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
		Faster:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Lower:       key.NewBinding(key.WithKeys("["), key.WithHelp("[", "lower pitch")),
		Higher:      key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "higher pitch")),

		Copy:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy text")),
		Edit:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit document")),
		Reload: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "close help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Prev, k.Next, k.PlayFromTop, k.Stop, k.Resume},
		{k.Slower, k.Faster, k.Lower, k.Higher},
		{k.Copy, k.Edit, k.Reload, k.Help, k.Quit},
	}
}
