package service

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zfogg/sidechain/chat/pkg/events"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/messaging"
	"github.com/zfogg/sidechain/chat/pkg/metrics"
	"github.com/zfogg/sidechain/chat/pkg/output"
	"github.com/zfogg/sidechain/chat/pkg/prompter"
	"github.com/zfogg/sidechain/chat/pkg/render"
)

const resyncTimeout = 30 * time.Second

// Chat runs an interactive session: real-time events are printed as they
// arrive and each input line is sent to the open conversation. Lines
// starting with "/" are commands; see chatHelp.
func (s *ChatService) Chat(ctx context.Context, conversationID string, in *prompter.Prompter) error {
	if err := s.session.LoadConversations(ctx); err != nil {
		return err
	}

	stop, err := s.connect()
	if err != nil {
		return err
	}
	defer stop()

	unsubscribe := s.bus.Subscribe(s.printEvent)
	defer unsubscribe()
	s.session.Typists().OnChange(s.printTyping)

	if conversationID != "" {
		if err := s.openAndShow(ctx, conversationID); err != nil {
			return err
		}
	} else if err := s.lockedErr(s.printInbox); err != nil {
		return err
	}
	s.locked(func() { output.PrintInfo(chatHelp) })

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.Line("")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		quit, err := s.handleLine(ctx, line)
		if err != nil {
			s.locked(func() { output.PrintError("%v", err) })
		}
		if quit {
			return nil
		}
	}
}

const chatHelp = "Commands: /open <id>, /inbox, /older, /delete <message-id>, /read, /who, /quit"

func (s *ChatService) handleLine(ctx context.Context, line string) (quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		active := s.session.Store().Active()
		if active == "" {
			return false, messaging.ErrNoActiveConversation
		}
		_, err := s.session.Send(ctx, active, line)
		return false, err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		s.session.StopTyping(ctx)
		return true, nil
	case "/open":
		if len(fields) < 2 {
			return false, errors.New("usage: /open <conversation-id>")
		}
		return false, s.openAndShow(ctx, fields[1])
	case "/inbox":
		return false, s.lockedErr(s.printInbox)
	case "/older":
		n, err := s.session.LoadOlder(ctx)
		if err != nil {
			return false, err
		}
		s.locked(func() { output.PrintInfo("Loaded %d older messages", n) })
		return false, nil
	case "/delete":
		if len(fields) < 2 {
			return false, errors.New("usage: /delete <message-id>")
		}
		for _, m := range s.session.Store().Messages() {
			if m.ID == fields[1] {
				return false, s.session.Delete(ctx, m)
			}
		}
		return false, errors.New("message is not in the open conversation")
	case "/read":
		active := s.session.Store().Active()
		if active == "" {
			return false, messaging.ErrNoActiveConversation
		}
		return false, s.session.MarkRead(ctx, active)
	case "/who":
		s.locked(s.printPresence)
		return false, nil
	default:
		s.locked(func() { output.PrintWarning("Unknown command %s", fields[0]) })
		return false, nil
	}
}

func (s *ChatService) openAndShow(ctx context.Context, conversationID string) error {
	if err := s.open(ctx, conversationID); err != nil {
		return err
	}
	s.locked(func() {
		for _, m := range s.session.Store().Messages() {
			s.printMessage(m, false)
		}
	})
	return nil
}

// connect starts the transport with a resync on every reconnect
func (s *ChatService) connect() (stop func(), err error) {
	t, err := s.transport(s.bus, s.creds.UserID)
	if err != nil {
		return nil, err
	}
	t.OnReconnect(func() {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		if err := s.session.Resync(ctx); err != nil {
			logger.Warn("Resync after reconnect failed", "error", err)
		}
	})
	if err := t.Connect(s.creds.AccessToken); err != nil {
		return nil, err
	}
	return t.Close, nil
}

// printEvent runs on the transport goroutine after the session has applied
// the event.
func (s *ChatService) printEvent(ev events.Event) {
	active := s.session.Store().Active()

	switch e := ev.(type) {
	case events.MessageReceived:
		if e.Message.Sender.ID == s.creds.UserID && e.Echo {
			return
		}
		if e.ConversationID == active {
			s.locked(func() { s.printMessage(e.Message, false) })
			return
		}
		s.locked(func() {
			output.PrintInfo("New message from %s in %s (%d unread)", e.Message.Sender.Name(), e.ConversationID, s.session.TotalUnread())
		})
	case events.MessageDeleted:
		if e.ConversationID == active {
			s.locked(func() { output.PrintInfo("Message %s was deleted", e.MessageID) })
		}
	case events.PresenceChanged:
		s.locked(func() { output.PrintInfo("%s is %s", e.UserID, e.Status) })
	}
}

func (s *ChatService) printTyping(conversationID string, userIDs []string) {
	if conversationID != s.session.Store().Active() || len(userIDs) == 0 {
		return
	}
	s.locked(func() { output.PrintInfo("%s typing…", strings.Join(userIDs, ", ")) })
}

func (s *ChatService) printPresence() {
	online := s.session.Presence().Online()
	if len(online) == 0 {
		output.PrintInfo("Nobody is online")
		return
	}
	output.PrintInfo("Online (%d): %s", len(online), strings.Join(online, ", "))
}

// Presence connects the transport, waits up to wait for a presence
// snapshot and prints who is online.
func (s *ChatService) Presence(ctx context.Context, wait time.Duration) error {
	got := make(chan struct{}, 1)
	unsubscribe := s.bus.Subscribe(func(ev events.Event) {
		if _, ok := ev.(events.PresenceSnapshot); ok {
			select {
			case got <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	stop, err := s.connect()
	if err != nil {
		return err
	}
	defer stop()

	select {
	case <-got:
	case <-time.After(wait):
		logger.Debug("No presence snapshot received", "wait", wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	if output.GetOutputFormat() == output.FormatJSON {
		return output.Print("", map[string]interface{}{"online": s.session.Presence().Online()})
	}
	s.locked(s.printPresence)
	return nil
}

// Preview renders text without sending it
func (s *ChatService) Preview(text string) string {
	return s.renderer.Render(text, render.Options{PreserveLineBreaks: true})
}

func (s *ChatService) locked(fn func()) {
	s.printMu.Lock()
	defer s.printMu.Unlock()
	fn()
}

func (s *ChatService) lockedErr(fn func() error) error {
	s.printMu.Lock()
	defer s.printMu.Unlock()
	return fn()
}

// ServeMetrics exposes prometheus metrics on addr until ctx is done
func ServeMetrics(ctx context.Context, addr string) (net.Addr, error) {
	metrics.Initialize()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", ln.Addr().String())
	return ln.Addr(), nil
}
