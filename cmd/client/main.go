package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"skill-chat/client"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/projection"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	SocketURL      string        `env:"CHAT_SOCKET_URL,default=ws://localhost:8080/ws"`
	APIURL         string        `env:"CHAT_API_URL,default=http://localhost:8080"`
	Token          string        `env:"CHAT_TOKEN,required=true"`
	Conversation   string        `env:"CHAT_CONVERSATION_ID"`
	ConnectTimeout time.Duration `env:"CHAT_CONNECT_TIMEOUT,default=10s"`
	MaxAttempts    int           `env:"CHAT_RECONNECT_ATTEMPTS,default=5"`
	PollInterval   time.Duration `env:"CHAT_POLL_INTERVAL,default=15s"`
	LogLevel       string        `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run drives a terminal session: stdin lines become socket events and every
// incoming event is folded into the focused conversation's timeline.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history := client.NewHistoryClient(config.APIURL, config.Token, config.ConnectTimeout)
	manager := client.NewManager(client.NewWebsocketDialer(config.SocketURL), history, client.Config{
		Credential:     config.Token,
		ConnectTimeout: config.ConnectTimeout,
		MaxAttempts:    config.MaxAttempts,
		PollInterval:   config.PollInterval,
	}, log)

	if err := manager.Start(ctx); err != nil && manager.State() == client.StateTerminated {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.SocketURL, err)
	}
	defer manager.Logout()

	session := &session{manager: manager, history: history, log: log, timelines: map[domain.ConversationID]*projection.Timeline{}}
	if config.Conversation != "" {
		session.focus(ctx, domain.ConversationID(config.Conversation))
	}
	log.Info(">>> Connected, type /help for commands (Ctrl+C to quit)", "url", config.SocketURL)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if quit := session.command(ctx, line); quit {
				return exitOK, nil
			}
		case env := <-manager.Events():
			session.render(env)
			if manager.State() == client.StateTerminated {
				return exitOK, nil
			}
		}
	}
}

type session struct {
	manager   *client.Manager
	history   *client.HistoryClient
	log       *slog.Logger
	current   domain.ConversationID
	timelines map[domain.ConversationID]*projection.Timeline
}

const help = `/open <conversationId>  focus a conversation
/close                  blur the current conversation
/typing | /stop         typing indicator
/away | /back           presence
/reconnect              retry after connection loss
/state                  connection state
/quit                   logout
anything else is sent to the focused conversation`

func (s *session) command(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	fields := strings.Fields(line)
	var err error
	switch fields[0] {
	case "/help":
		fmt.Println(help)
	case "/open":
		if len(fields) != 2 {
			fmt.Println("usage: /open <conversationId>")
			return false
		}
		s.focus(ctx, domain.ConversationID(fields[1]))
	case "/close":
		err = s.manager.Blur(s.current)
		s.current = ""
	case "/typing", "/stop":
		err = s.manager.SendTyping(s.current, fields[0] == "/typing")
	case "/away", "/back":
		err = s.manager.SetAway(fields[0] == "/away")
	case "/reconnect":
		err = s.manager.Reconnect(ctx)
	case "/state":
		fmt.Println(s.manager.State())
	case "/quit":
		s.manager.Logout()
		return true
	default:
		if s.current == "" {
			fmt.Println("no conversation open, use /open <conversationId>")
			return false
		}
		_, err = s.manager.SendMessage(event.SendMessagePayload{
			ConversationID: string(s.current),
			Content:        line,
		})
	}
	if err != nil {
		s.log.Warn("Command failed", "command", fields[0], "error", err)
	}
	return false
}

// focus joins the room and seeds the timeline with the latest page.
func (s *session) focus(ctx context.Context, id domain.ConversationID) {
	if err := s.manager.Focus(id); err != nil {
		s.log.Warn("Focus failed", "conversation_id", id, "error", err)
	}
	s.current = id
	timeline := s.timeline(id)
	messages, err := s.history.Latest(ctx, id, 20)
	if err != nil {
		s.log.Warn("History unavailable", "conversation_id", id, "error", err)
		return
	}
	timeline.Merge(messages...)
	for _, m := range timeline.Messages() {
		printMessage(m)
	}
}

func (s *session) timeline(id domain.ConversationID) *projection.Timeline {
	t, ok := s.timelines[id]
	if !ok {
		t = projection.NewTimeline(id)
		s.timelines[id] = t
	}
	return t
}

func (s *session) render(env event.Envelope) {
	switch env.Event {
	case event.NewMessage, event.MessageSent, event.MessageUpdated:
		var payload event.MessagePayload
		if err := env.Decode(&payload); err != nil {
			s.log.Warn("Undecodable message", "event", env.Event, "error", err)
			return
		}
		m, err := payload.ToMessage()
		if err != nil {
			s.log.Warn("Invalid message", "event", env.Event, "error", err)
			return
		}
		s.fold(m.ConversationID, env)
		if env.Event != event.MessageSent {
			printMessage(m)
		}
	case event.MessageDeleted, event.MessagesRead:
		s.fold(domain.ConversationID(env.ConversationID), env)
	case event.UserTyping:
		var payload event.TypingPayload
		if env.Decode(&payload) == nil && payload.IsTyping {
			fmt.Printf("... %s is typing\n", payload.UserID)
		}
	case event.PresenceUpdate:
		var payload event.PresencePayload
		if env.Decode(&payload) == nil {
			fmt.Printf("* %s is %s\n", payload.UserID, payload.Status)
		}
	case event.Error, event.ConnectError:
		var payload event.ErrorPayload
		if env.Decode(&payload) == nil {
			fmt.Printf("! %s: %s\n", payload.Kind, payload.Message)
		}
	case event.Connected, event.Disconnected:
		fmt.Printf("* %s (%s)\n", env.Event, s.manager.State())
	}
}

func (s *session) fold(id domain.ConversationID, env event.Envelope) {
	if id == "" {
		return
	}
	if err := s.timeline(id).Consume(env); err != nil {
		s.log.Debug("Timeline skipped event", "event", env.Event, "error", err)
	}
}

func printMessage(m domain.Message) {
	suffix := ""
	if m.IsEdited {
		suffix = " (edited)"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format(time.TimeOnly), m.SenderID, m.Content, suffix)
}
