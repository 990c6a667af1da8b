package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/chatpipe"
	"github.com/hupe1980/chatpipe/core"
	"github.com/hupe1980/chatpipe/internal/telemetry"
	"github.com/hupe1980/chatpipe/pipeline"
)

const (
	defaultTitle  = "New chat"
	titleLength   = 40
	replEventSize = 64
)

var (
	youColor       = color.New(color.FgGreen, color.Bold)
	assistantColor = color.New(color.FgCyan, color.Bold)
	errorColor     = color.New(color.FgRed)
	noticeColor    = color.New(color.FgYellow)
)

func newChatCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: "Start an interactive chat. Replies stream as they arrive; Ctrl+C cancels a reply\n" +
			"in progress and exits at the prompt. Commands: /new, /sessions, /open <id>, /quit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			shutdown, err := telemetry.Setup(ctx, a.cfg.Trace)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.Background()) }()

			b, err := newBackend(a.cfg.Backend, a.logger.WithComponent("backend"))
			if err != nil {
				return err
			}
			client, cleanup, err := a.newClient(b)
			if err != nil {
				return err
			}
			defer func() {
				if err := cleanup(); err != nil {
					a.logger.Error("shutdown: %v", err)
				}
			}()

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			r := &repl{client: client, in: cmd.InOrStdin(), out: cmd.OutOrStdout(), interrupts: interrupts}
			return r.run(ctx, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume the session with this id")
	return cmd
}

// repl is the interactive chat loop. Only one reply is in flight at a time.
type repl struct {
	client     *chatpipe.Client
	in         io.Reader
	out        io.Writer
	interrupts <-chan os.Signal
	sessionID  string
}

func (r *repl) run(ctx context.Context, sessionID string) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := r.open(sessionID); err != nil {
		return err
	}

	events := make(chan core.ChatEvent, replEventSize)
	go func() {
		_ = r.client.Run(ctx, func(ev core.ChatEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(r.out, "Session %s. Type /quit or press Ctrl+C to exit.\n", r.sessionID)
	for {
		youColor.Fprint(r.out, "You: ")
		select {
		case <-ctx.Done():
			return nil
		case <-r.interrupts:
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			if quit := r.handle(ctx, strings.TrimSpace(line), events); quit {
				return nil
			}
		}
	}
}

// open selects the session to chat in: the given id or a fresh session.
func (r *repl) open(id string) error {
	if id == "" {
		newID, err := r.client.NewSession(defaultTitle)
		if err != nil {
			return err
		}
		r.sessionID = newID
		return nil
	}
	if _, ok := r.client.Registry().Get(id); !ok {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	r.client.Registry().SetActive(id)
	r.sessionID = id
	return nil
}

// handle processes one input line and reports whether the loop should end.
func (r *repl) handle(ctx context.Context, line string, events <-chan core.ChatEvent) bool {
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/exit":
		return true
	case line == "/new":
		if err := r.open(""); err != nil {
			errorColor.Fprintf(r.out, "error: %v\n", err)
			return false
		}
		noticeColor.Fprintf(r.out, "started session %s\n", r.sessionID)
		return false
	case line == "/sessions":
		r.listSessions()
		return false
	case strings.HasPrefix(line, "/open "):
		if err := r.open(strings.TrimSpace(strings.TrimPrefix(line, "/open "))); err != nil {
			errorColor.Fprintf(r.out, "error: %v\n", err)
			return false
		}
		noticeColor.Fprintf(r.out, "switched to session %s\n", r.sessionID)
		return false
	case strings.HasPrefix(line, "/"):
		noticeColor.Fprintln(r.out, "commands: /new, /sessions, /open <id>, /quit")
		return false
	}

	r.titleFrom(line)
	messageID, _, err := r.client.Send(r.sessionID, line)
	if err != nil {
		errorColor.Fprintf(r.out, "error: %v\n", err)
		return errors.Is(err, pipeline.ErrClosed)
	}
	r.stream(ctx, messageID, events)
	return false
}

// stream prints the reply for messageID until its terminal event. An
// interrupt cancels the reply; the loop still waits for the terminal event.
func (r *repl) stream(ctx context.Context, messageID string, events <-chan core.ChatEvent) {
	assistantColor.Fprint(r.out, "Assistant: ")
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.interrupts:
			_ = r.client.Cancel(r.sessionID, messageID)
		case ev := <-events:
			if ev.Key().MessageID != messageID {
				continue
			}
			switch ev := ev.(type) {
			case core.ChatResponseChunk:
				fmt.Fprint(r.out, ev.Content)
			case core.ChatError:
				errorColor.Fprintf(r.out, "[error: %s]", ev.Description)
			case core.Cancelled:
				noticeColor.Fprint(r.out, " [cancelled]")
			}
			if ev.IsTerminal() {
				fmt.Fprintln(r.out)
				return
			}
		}
	}
}

// titleFrom names an untitled session after its first message.
func (r *repl) titleFrom(line string) {
	_, _ = r.client.Registry().Update(r.sessionID, func(s *core.ChatSession) {
		if s.Title != defaultTitle || len(s.Messages) > 0 {
			return
		}
		title := line
		if utf8.RuneCountInString(title) > titleLength {
			title = string([]rune(title)[:titleLength]) + "..."
		}
		s.SetTitle(title)
	})
}

func (r *repl) listSessions() {
	active := r.client.Registry().ActiveID()
	for _, s := range r.client.Registry().List() {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s  %-40s  %d messages\n", marker, s.ID, s.Title, len(s.Messages))
	}
}
