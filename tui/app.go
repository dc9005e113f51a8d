// Package tui implements the Bubble Tea application model for yreplctl,
// a live inspector that joins a room over the real sync protocol and
// renders its shared text document as it converges.
package tui

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/replica"
	"github.com/Polqt/yrepl/syncproto"
	"github.com/Polqt/yrepl/transact"
	"github.com/Polqt/yrepl/transport"
	"github.com/Polqt/yrepl/ytype"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	docStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

type viewKind int

const (
	viewDoc viewKind = iota
	viewInsert
)

// docChangedMsg fires whenever the shared text converges to a new value,
// whether from a local edit or a remote one.
type docChangedMsg struct{ content string }

// connErrMsg fires when the read loop dies.
type connErrMsg struct{ err error }

// App is the root Bubble Tea model for yreplctl.
type App struct {
	addr string
	room string
	conn *transport.WSConn
	r    *replica.Replica
	doc  *ytype.Text

	msgs chan tea.Msg

	view      viewKind
	textInput textinput.Model
	spinner   spinner.Model

	content string
	status  string
	statErr bool
}

// New dials addr, joins the room, and wires the local replica's lifecycle
// hook to broadcast local edits as sync-protocol updates (spec.md §4.9,
// §11 "exercises the sync protocol client side end to end").
func New(addr string) (*App, error) {
	conn, err := transport.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}

	clientID, err := randomClientID()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tui: %w", err)
	}

	log := zap.NewNop()
	r := replica.New(clientID, log)
	doc, err := r.DefineText("doc")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tui: define shared text: %w", err)
	}

	msgs := make(chan tea.Msg, 64)

	ti := textinput.New()
	ti.Placeholder = "text to insert at the end..."
	ti.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	app := &App{
		addr:      addr,
		room:      roomFromAddr(addr),
		conn:      conn,
		r:         r,
		doc:       doc,
		msgs:      msgs,
		textInput: ti,
		spinner:   sp,
	}

	app.wireBroadcast()
	go app.readLoop()
	app.sendOpeningSyncStep1()

	return app, nil
}

// roomFromAddr extracts the room name from a ws://host/ws/<room> URL,
// falling back to "default" if the path doesn't match that shape.
func roomFromAddr(addr string) string {
	u, err := url.Parse(addr)
	if err != nil {
		return "default"
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 {
		return "default"
	}
	room := segments[len(segments)-1]
	if room == "" {
		return "default"
	}
	return room
}

func randomClientID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]) | 1, nil
}

// wireBroadcast hooks the local replica so every locally-originated
// transaction is shipped to the server as an update envelope (spec.md
// §4.9 unsolicited Update messages), mirroring session.Hub.afterApply on
// the client side.
func (a *App) wireBroadcast() {
	a.r.OnLifecycle(func(phase string, tx *transact.Transaction) {
		if phase != "afterTransaction" || tx.Remote {
			return
		}
		structs := syncproto.ComputeMissing(a.r, tx.BeforeState)
		if len(structs) == 0 {
			return
		}
		update := syncproto.Update{Structs: structs}
		env := syncproto.EncodeEnvelope(a.room, syncproto.KindUpdate, update.Encode())
		if err := a.conn.WriteMessage(env); err != nil {
			a.msgs <- connErrMsg{err: err}
			return
		}
		a.msgs <- docChangedMsg{content: a.doc.String()}
	})
}

// sendOpeningSyncStep1 announces our (empty) state vector so the server
// replies with everything it has (spec.md §4.9 initiator handshake).
func (a *App) sendOpeningSyncStep1() {
	step1 := syncproto.SyncStep1{ProtocolVersion: syncproto.ProtocolVersion, StateVector: a.r.StateVector().Snapshot()}
	env := syncproto.EncodeEnvelope(a.room, syncproto.KindSyncStep1, step1.Encode())
	if err := a.conn.WriteMessage(env); err != nil {
		a.msgs <- connErrMsg{err: err}
	}
}

// readLoop pulls envelopes off the wire and applies them to the local
// replica, forwarding a render tick on every successful apply.
func (a *App) readLoop() {
	reg := a.r.Registry()
	depQ := syncproto.NewDepQueue()
	for {
		payload, err := a.conn.ReadMessage()
		if err != nil {
			a.msgs <- connErrMsg{err: err}
			return
		}
		env, err := syncproto.DecodeEnvelope(payload)
		if err != nil {
			continue
		}
		switch env.Kind {
		case syncproto.KindSyncStep1:
			step1, err := syncproto.DecodeSyncStep1(env.Body)
			if err != nil {
				continue
			}
			structs := syncproto.ComputeMissing(a.r, step1.StateVector)
			if len(structs) > 0 {
				reply := syncproto.Update{Structs: structs}
				a.conn.WriteMessage(syncproto.EncodeEnvelope(a.room, syncproto.KindUpdate, reply.Encode()))
			}
		case syncproto.KindSyncStep2:
			step2, err := syncproto.DecodeSyncStep2(reg, env.Body)
			if err != nil {
				continue
			}
			syncproto.ApplyStructs(a.r, step2.Structs, depQ)
			for client, runs := range step2.Deletes {
				a.r.DeleteStore().Merge(client, runs)
			}
			a.msgs <- docChangedMsg{content: a.doc.String()}
		case syncproto.KindUpdate:
			update, err := syncproto.DecodeUpdate(reg, env.Body)
			if err != nil {
				continue
			}
			syncproto.ApplyStructs(a.r, update.Structs, depQ)
			a.msgs <- docChangedMsg{content: a.doc.String()}
		}
	}
}

func waitForMsg(msgs chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-msgs }
}

// Init starts listening for protocol-driven render ticks.
func (a App) Init() tea.Cmd {
	return tea.Batch(waitForMsg(a.msgs), spinner.Tick)
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.conn.Close()
			return a, tea.Quit
		case "q":
			if a.view == viewDoc {
				a.conn.Close()
				return a, tea.Quit
			}
			a.view = viewDoc
			return a, waitForMsg(a.msgs)
		case "i":
			if a.view == viewDoc {
				a.view = viewInsert
				a.textInput.SetValue("")
				a.textInput.Focus()
				return a, textinput.Blink
			}
		case "enter":
			if a.view == viewInsert {
				text := a.textInput.Value()
				if text != "" {
					end := len([]rune(a.doc.String()))
					if err := a.doc.Insert(end, text, nil); err != nil {
						a.status = err.Error()
						a.statErr = true
					} else {
						a.status = "inserted"
						a.statErr = false
					}
				}
				a.view = viewDoc
				return a, waitForMsg(a.msgs)
			}
		case "esc":
			a.view = viewDoc
			return a, waitForMsg(a.msgs)
		}

	case docChangedMsg:
		a.content = msg.content
		cmds = append(cmds, waitForMsg(a.msgs))

	case connErrMsg:
		a.status = msg.err.Error()
		a.statErr = true
		return a, nil

	case spinner.TickMsg:
		sp, cmd := a.spinner.Update(msg)
		a.spinner = sp
		cmds = append(cmds, cmd)
	}

	if a.view == viewInsert {
		var cmd tea.Cmd
		a.textInput, cmd = a.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View renders the UI.
func (a App) View() string {
	switch a.view {
	case viewInsert:
		return a.insertView()
	default:
		return a.docView()
	}
}

func (a App) docView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("yreplctl — " + a.addr) + "\n\n")
	b.WriteString(dimStyle.Render("state vector: "+formatStateVector(a.r.StateVector().Snapshot())) + "\n\n")
	b.WriteString(docStyle.Render(a.content) + "\n")
	if a.status != "" {
		b.WriteString("\n")
		if a.statErr {
			b.WriteString(errorStyle.Render("✗ " + a.status))
		} else {
			b.WriteString(dimStyle.Render("✓ " + a.status))
		}
	}
	b.WriteString("\n\n" + dimStyle.Render("[i] insert  [q] quit"))
	return borderStyle.Render(b.String())
}

func (a App) insertView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Insert at end") + "\n\n")
	b.WriteString(a.textInput.View() + "\n\n")
	b.WriteString(dimStyle.Render("[enter] send  [esc] cancel"))
	return borderStyle.Render(b.String())
}

func formatStateVector(sv map[uint32]uint32) string {
	clients := make([]uint32, 0, len(sv))
	for c := range sv {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })
	parts := make([]string, 0, len(clients))
	for _, c := range clients {
		parts = append(parts, fmt.Sprintf("%d:%d", c, sv[c]))
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " ")
}
