package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/dgnsrekt/recite/internal/highlight"
	"github.com/dgnsrekt/recite/internal/loop"
	"github.com/dgnsrekt/recite/internal/navbridge"
	"github.com/dgnsrekt/recite/internal/observe"
	"github.com/dgnsrekt/recite/internal/playback"
	"github.com/dgnsrekt/recite/internal/prefs"
	"github.com/dgnsrekt/recite/internal/source"
	"github.com/dgnsrekt/recite/internal/speech"
	"github.com/dgnsrekt/recite/internal/unlock"
	"github.com/muesli/termenv"
)

const (
	statusMessageTimeout = time.Second * 3
	ellipsis             = "…"
	statusBarHeight      = 1
	rateStep             = 0.1
)

// Narration holds what the program narrates with.
type Narration struct {
	Backend  speech.Backend
	Store    *prefs.Store
	Playback playback.Config
	Metrics  *observe.Metrics
	Logger   *log.Logger

	// Channel, when set, carries navigation commands to a host application
	// and toggle commands back.
	Channel navbridge.Channel

	// Stdin is read when Config.Path is "-".
	Stdin io.Reader
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, n Narration) *tea.Program {
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	// Piped text has already consumed stdin; read keys from the terminal.
	if cfg.Path == source.Stdin {
		opts = append(opts, tea.WithInputTTY())
	}
	return tea.NewProgram(newModel(cfg, n), opts...)
}

type (
	errMsg                  struct{ err error }
	loopMsg                 func()
	inboundMsg              navbridge.Command
	reloadMsg               struct{ path string }
	editorFinishedMsg       struct{ err error }
	statusMessageTimeoutMsg struct{}

	documentMsg struct {
		path     string
		doc      source.Document
		err      error
		autoplay bool
	}
)

func (e errMsg) Error() string { return e.err.Error() }

type pagerState int

const (
	pagerStateBrowse pagerState = iota
	pagerStateStatusMessage
)

type statusMessage struct {
	message string
	isError bool
}

type model struct {
	cfg    Config
	logger *log.Logger
	width  int
	height int

	queue     *loop.Queue
	renderer  *highlight.Renderer
	driver    *playback.Driver
	handshake *unlock.Handshake
	bridge    *navbridge.Bridge
	nav       *navigator
	store     *prefs.Store
	channel   navbridge.Channel
	stdin     io.Reader

	doc      source.Document
	loaded   bool
	watcher  *source.Watcher
	rendered uint64

	viewport      viewport.Model
	keys          keyMap
	help          help.Model
	showHelp      bool
	state         pagerState
	statusMessage statusMessage
	statusTimer   *time.Timer
	fatalErr      error
}

func newModel(cfg Config, n Narration) model {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Keys == (navbridge.KeyMap{}) {
		cfg.Keys = navbridge.DefaultKeyMap()
	}
	if n.Playback.Chunker.Max == 0 {
		n.Playback = playback.DefaultConfig()
	}
	q := loop.NewQueue(0)

	style := highlight.DefaultStyle
	if cfg.HighlightColor != "" {
		style = style.Background(lipgloss.Color(cfg.HighlightColor))
	}
	ropts := []highlight.Option{highlight.WithStyle(style), highlight.WithMargin(cfg.EdgeMargin)}
	if cfg.RepaintInterval > 0 {
		ropts = append(ropts, highlight.WithInterval(cfg.RepaintInterval))
	}
	renderer := highlight.NewRenderer(q, ropts...)

	store := n.Store
	if store == nil {
		store = prefs.NewStore(prefs.NewMemoryKV(), logger)
	}
	driver := playback.New(n.Backend, q,
		playback.WithConfig(n.Playback),
		playback.WithPainter(renderer),
		playback.WithMetrics(n.Metrics),
		playback.WithLogger(logger.WithPrefix("playback")),
		playback.WithPreferences(store.Load()),
	)

	nav := &navigator{logger: logger}
	strategies := []navbridge.Strategy{navbridge.Direct{Host: nav}}
	if n.Channel != nil {
		strategies = append(strategies, navbridge.Posted{Channel: n.Channel})
	}
	bridge := navbridge.New(driver,
		navbridge.WithStrategies(strategies...),
		navbridge.WithKeyMap(cfg.Keys),
		navbridge.WithMetrics(n.Metrics),
		navbridge.WithLogger(logger.WithPrefix("bridge")),
	)

	vp := viewport.New(0, 0)
	vp.YPosition = 0

	return model{
		cfg:       cfg,
		logger:    logger,
		queue:     q,
		renderer:  renderer,
		driver:    driver,
		handshake: unlock.New(n.Backend, q, unlock.WithLogger(logger.WithPrefix("unlock"))),
		bridge:    bridge,
		nav:       nav,
		store:     store,
		channel:   n.Channel,
		stdin:     n.Stdin,
		viewport:  vp,
		keys:      newKeyMap(bridge.Keys()),
		help:      help.New(),
	}
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "path", m.cfg.Path)
	cmds := []tea.Cmd{
		waitForLoop(m.queue),
		loadDocument(m.cfg.Path, m.stdin, m.cfg.Autoplay),
	}
	if m.channel != nil {
		cmds = append(cmds, waitForInbound(m.channel))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case loopMsg:
		msg()
		cmds = append(cmds, waitForLoop(m.queue))

	case inboundMsg:
		if m.bridge.HandleInbound(navbridge.Command(msg)) {
			m.handshake.Cancel()
		}
		cmds = append(cmds, waitForInbound(m.channel))

	case documentMsg:
		cmds = append(cmds, m.setDocument(msg))

	case reloadMsg:
		if msg.path == m.doc.Path {
			return m, loadDocument(m.doc.Path, nil, false)
		}

	case editorFinishedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatusMessage(statusMessage{"Editor failed: " + msg.err.Error(), true}))
		} else if m.doc.Path != "" {
			return m, loadDocument(m.doc.Path, nil, false)
		}

	case errMsg:
		m.logger.Error("error", "error", msg.err)
		cmds = append(cmds, m.showStatusMessage(statusMessage{msg.err.Error(), true}))

	case statusMessageTimeoutMsg:
		m.state = pagerStateBrowse

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.setSize()

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress {
			m.handshake.Gesture()
		}

	case tea.KeyMsg:
		m.handshake.Gesture()
		if key.Matches(msg, m.keys.Toggle, m.keys.PlayFromTop, m.keys.Resume) {
			// an explicit play wins over a deferred autoplay
			m.handshake.Cancel()
		}
		if m.bridge.HandleKey(msg.String()) {
			if path := m.nav.take(); path != "" {
				cmds = append(cmds, loadDocument(path, nil, true))
			}
			break
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			if msg.String() == "q" && m.state != pagerStateBrowse {
				m.state = pagerStateBrowse
				return m, nil
			}
			m.shutdown()
			return m, tea.Quit
		case key.Matches(msg, m.keys.PlayFromTop):
			m.driver.Play(m.renderer.TopOffset())
		case key.Matches(msg, m.keys.Stop):
			m.driver.Stop()
		case key.Matches(msg, m.keys.Resume):
			m.driver.Resume()
		case key.Matches(msg, m.keys.Slower):
			cmds = append(cmds, m.retune(m.driver.Preferences().AdjustRate(-rateStep)))
		case key.Matches(msg, m.keys.Faster):
			cmds = append(cmds, m.retune(m.driver.Preferences().AdjustRate(rateStep)))
		case key.Matches(msg, m.keys.Lower):
			cmds = append(cmds, m.retune(m.driver.Preferences().AdjustPitch(-rateStep)))
		case key.Matches(msg, m.keys.Higher):
			cmds = append(cmds, m.retune(m.driver.Preferences().AdjustPitch(rateStep)))
		case key.Matches(msg, m.keys.Copy):
			text := string(m.driver.Text())
			// Copy using OSC 52
			termenv.Copy(text)
			// Copy using native system clipboard
			_ = clipboard.WriteAll(text)
			cmds = append(cmds, m.showStatusMessage(statusMessage{"Copied contents", false}))
		case key.Matches(msg, m.keys.Edit):
			if m.doc.Path != "" {
				return m, openEditor(m.doc.Path)
			}
		case key.Matches(msg, m.keys.Reload):
			if m.doc.Path != "" {
				return m, loadDocument(m.doc.Path, nil, false)
			}
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.setSize()
		default:
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
			m.renderer.SetYOffset(m.viewport.YOffset)
		}
	}

	if _, ok := msg.(tea.MouseMsg); ok {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		m.renderer.SetYOffset(m.viewport.YOffset)
	}

	m.sync()
	return m, tea.Batch(cmds...)
}

// sync copies the renderer's content and scroll position into the viewport
// when they changed.
func (m *model) sync() {
	if v := m.renderer.Version(); v != m.rendered {
		m.rendered = v
		m.viewport.SetContent(m.renderer.Content())
	}
	if y := m.renderer.YOffset(); y != m.viewport.YOffset {
		m.viewport.SetYOffset(y)
	}
}

func (m *model) setSize() {
	m.viewport.Width = m.width
	m.help.Width = m.width
	m.viewport.Height = m.height - statusBarHeight
	if m.showHelp {
		m.viewport.Height -= strings.Count(m.helpView(), "\n") + 1
	}
	m.viewport.Height = max(0, m.viewport.Height)
	m.renderer.Resize(m.viewport.Width, m.viewport.Height)
}

func (m *model) setDocument(msg documentMsg) tea.Cmd {
	if msg.err != nil && !errors.Is(msg.err, source.ErrEmpty) {
		m.logger.Error("unable to load document", "path", msg.path, "error", msg.err)
		if !m.loaded {
			m.fatalErr = msg.err
			return nil
		}
		return m.showStatusMessage(statusMessage{msg.err.Error(), true})
	}

	reload := m.loaded && msg.doc.Path == m.doc.Path
	m.doc, m.loaded = msg.doc, true
	m.nav.current = msg.doc.Path
	m.driver.Load(msg.doc.Text)
	m.renderer.SetText(m.driver.Text())
	m.logger.Debug("document loaded", "path", msg.doc.Path, "runes", len(m.driver.Text()), "reload", reload)

	if msg.autoplay {
		d := m.driver
		m.handshake.RequestAutoplay(func() {
			if d.State() == playback.Idle {
				d.Play(0)
			}
		})
	}

	var cmds []tea.Cmd
	if errors.Is(msg.err, source.ErrEmpty) {
		cmds = append(cmds, m.showStatusMessage(statusMessage{playback.StatusEmpty, false}))
	}
	if w := m.watch(msg.doc.Path, reload); w != nil {
		cmds = append(cmds, w)
	}
	return tea.Batch(cmds...)
}

// watch follows path for changes. A reload keeps the existing watcher.
func (m *model) watch(path string, reload bool) tea.Cmd {
	if reload && m.watcher != nil {
		return waitForChange(m.watcher)
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
		m.watcher = nil
	}
	if path == "" {
		return nil
	}
	w, err := source.Watch(path, m.logger)
	if err != nil {
		m.logger.Error("error watching document", "path", path, "error", err)
		return nil
	}
	m.watcher = w
	return waitForChange(w)
}

func (m *model) retune(p prefs.Preferences) tea.Cmd {
	saved, err := m.store.Save(p)
	m.driver.Retune(saved)
	if err != nil {
		return m.showStatusMessage(statusMessage{"Voice settings not saved", true})
	}
	return m.showStatusMessage(statusMessage{
		fmt.Sprintf("Rate %s, pitch %s", saved.FormatRate(), saved.FormatPitch()), false,
	})
}

func (m *model) showStatusMessage(msg statusMessage) tea.Cmd {
	m.state = pagerStateStatusMessage
	m.statusMessage = msg
	if m.statusTimer != nil {
		m.statusTimer.Stop()
	}
	m.statusTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusTimer)
}

func (m *model) shutdown() {
	m.handshake.Cancel()
	m.driver.Load("")
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	if m.statusTimer != nil {
		m.statusTimer.Stop()
	}
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")
	m.statusBarView(&b)
	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

func waitForLoop(q *loop.Queue) tea.Cmd {
	return func() tea.Msg {
		return loopMsg(<-q.C())
	}
}

func waitForInbound(ch navbridge.Channel) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch.Receive()
		if !ok {
			log.Debug("inbound command channel closed")
			return nil
		}
		return inboundMsg(c)
	}
}

func waitForChange(w *source.Watcher) tea.Cmd {
	return func() tea.Msg {
		if err := w.Wait(context.Background()); err != nil {
			return nil
		}
		return reloadMsg{path: w.Path()}
	}
}

func loadDocument(path string, stdin io.Reader, autoplay bool) tea.Cmd {
	return func() tea.Msg {
		doc, err := source.Load(path, stdin)
		return documentMsg{path: path, doc: doc, err: err, autoplay: autoplay}
	}
}

func openEditor(path string) tea.Cmd {
	c, err := editor.Cmd("Recite", path)
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return editorFinishedMsg{err}
	})
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

// ETC

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
