// Command yreplctl is an operational TUI that joins a running yrepl room
// over the real sync protocol and renders its live shared text and state
// vector (spec.md §11 domain stack: "a small TUI
// inspector exercising the sync protocol client side end to end").
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Polqt/yrepl/tui"
)

func main() {
	addr := "ws://localhost:8080/ws/default"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	model, err := tui.New(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yreplctl: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "yreplctl: %v\n", err)
		os.Exit(1)
	}
}
