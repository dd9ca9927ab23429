package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/matthannam-fart/office-hours/internal/audio"
	"github.com/matthannam-fart/office-hours/internal/session"
)

const logLines = 6

// IntercomModel is the main Bubble Tea model for a live intercom session:
// mode badges, push-to-talk, received-message shelf, and a short activity
// log.
type IntercomModel struct {
	sess    *session.Session
	capture func() audio.Capture

	talking   bool
	talkStop  func()
	peerTalks bool

	recordings []*audio.RecordedMessage
	log        []string

	spinner  spinner.Model
	quitting bool
	closed   bool
	closeErr error
}

// NewIntercom builds the session UI. capture opens a fresh capture source
// per talk burst; nil disables outbound audio but keeps the signaling.
func NewIntercom(sess *session.Session, capture func() audio.Capture) *IntercomModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &IntercomModel{
		sess:    sess,
		capture: capture,
		spinner: s,
	}
}

// RunIntercom drives the session UI until it closes, returning the recorded
// messages collected along the way.
func RunIntercom(sess *session.Session, capture func() audio.Capture) ([]*audio.RecordedMessage, error) {
	m := NewIntercom(sess, capture)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, err
	}
	fm := final.(*IntercomModel)
	return fm.recordings, fm.closeErr
}

type sessionEventMsg session.Event

func (m *IntercomModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		return sessionEventMsg(<-m.sess.Events())
	}
}

func (m *IntercomModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvents())
}

func (m *IntercomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.stopTalking()
			m.sess.Disconnect()
			return m, tea.Quit

		case " ":
			if m.talking {
				m.stopTalking()
				m.note("you stopped talking")
			} else if m.startTalking() {
				m.note("you are talking")
			}

		case "m", "tab":
			if next, err := m.sess.CycleMode(); err == nil {
				m.note(fmt.Sprintf("mode set to %s", next))
			}

		case "r":
			if len(m.recordings) > 0 {
				rec := m.recordings[len(m.recordings)-1]
				go m.sess.SendRecorded(rec)
				m.note("replaying last message to peer")
			}
		}

	case sessionEventMsg:
		m.applyEvent(session.Event(msg))
		if !m.closed {
			cmds = append(cmds, m.listenForEvents())
		} else if !m.quitting {
			m.quitting = true
			cmds = append(cmds, tea.Quit)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *IntercomModel) applyEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventEstablished:
		m.note("session established")
	case session.EventPeerMode:
		m.note(fmt.Sprintf("peer switched to %s", ev.Mode))
	case session.EventPeerTalkStart:
		m.peerTalks = true
		m.note("peer is talking")
	case session.EventPeerTalkEnd:
		m.peerTalks = false
		m.note("peer stopped talking")
	case session.EventRecorded:
		m.recordings = append(m.recordings, ev.Recording)
		m.note(fmt.Sprintf("message recorded (%s)", ev.Recording.Duration().Round(time.Second)))
	case session.EventPeerUnavailable:
		m.note("peer is unavailable")
	case session.EventError:
		m.note("error: " + ev.Message)
	case session.EventClosed:
		m.closed = true
		m.closeErr = ev.Err
		m.peerTalks = false
	}
}

// startTalking opens a capture source and streams it until stopTalking.
func (m *IntercomModel) startTalking() bool {
	if m.capture == nil {
		if m.sess.StartTalk() != nil {
			return false
		}
		m.talking = true
		m.talkStop = func() { m.sess.EndTalk() }
		return true
	}
	src := m.capture()
	if src == nil {
		return false
	}
	go m.sess.Talk(src)
	m.talking = true
	m.talkStop = func() { src.Close() }
	return true
}

func (m *IntercomModel) stopTalking() {
	if !m.talking {
		return
	}
	m.talking = false
	if m.talkStop != nil {
		m.talkStop()
		m.talkStop = nil
	}
}

func (m *IntercomModel) note(s string) {
	m.log = append(m.log, s)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func (m *IntercomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := "Office Hours"
	if code := m.sess.RoomCode(); code != "" {
		title += "  " + MutedStyle.Render(IconRoom+" "+code)
	} else if name := m.sess.PeerName(); name != "" {
		title += "  " + MutedStyle.Render(IconPeer+" "+name)
	}
	b.WriteString(TitleStyle.Render(title) + "\n")

	b.WriteString(fmt.Sprintf("You: %s   Peer: %s\n\n",
		ModeBadge(m.sess.Mode().String()),
		ModeBadge(m.sess.PeerMode().String()),
	))

	switch {
	case m.talking:
		b.WriteString(fmt.Sprintf("%s %s\n", IconTalk, BoldStyle.Render("Talking... (space to stop)")))
	case m.peerTalks:
		b.WriteString(fmt.Sprintf("%s %s %s\n", IconListen, m.spinner.View(), "Peer is talking"))
	default:
		b.WriteString(MutedStyle.Render("Idle. Hold court with space.") + "\n")
	}

	if n := len(m.recordings); n > 0 {
		b.WriteString(fmt.Sprintf("\n%s %d recorded message(s), r replays the last one\n", IconTape, n))
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(MutedStyle.Render("  · "+line) + "\n")
		}
	}

	b.WriteString("\n" + MutedStyle.Render("space talk · m mode · r replay · q hang up"))
	return b.String()
}
