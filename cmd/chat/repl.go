package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"personachat/models"
	"personachat/personas"
	"personachat/session"
)

type repl struct {
	state    *session.State
	streamer session.Streamer
	in       io.Reader
	out      io.Writer
}

func (r *repl) run(ctx context.Context) error {
	r.banner()
	reader := bufio.NewReader(r.in)
	for {
		fmt.Fprintf(r.out, "%s> ", r.state.Selected())
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if quit := r.handle(ctx, line); quit {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// handle runs one input line and reports whether the session should end.
func (r *repl) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/switch":
		if len(fields) != 2 {
			fmt.Fprintf(r.out, "usage: /switch <%s>\n", strings.Join(personas.IDs(), "|"))
			return false
		}
		if err := r.state.Select(fields[1]); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return false
		}
		r.banner()
	case "/history":
		for _, m := range r.state.Messages(r.state.Selected()) {
			switch {
			case m.Kind == models.KindSwitch:
				fmt.Fprintf(r.out, "-- %s --\n", m.Content)
			case m.Sender == models.SenderUser:
				fmt.Fprintf(r.out, "you: %s\n", m.Content)
			default:
				fmt.Fprintf(r.out, "%s: %s\n", m.Persona, m.Content)
			}
		}
	default:
		fmt.Fprintln(r.out, "commands: /switch <persona>, /history, /quit")
	}
	return false
}

// send prints every chunk as soon as it arrives. A fallback replaces the
// partial answer on a fresh line.
func (r *repl) send(ctx context.Context, text string) {
	printed := 0
	reply, err := r.state.Send(ctx, r.streamer, text, func(m session.Message) {
		fmt.Fprint(r.out, m.Content[printed:])
		printed = len(m.Content)
	})
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if reply.Fallback {
		if printed > 0 {
			fmt.Fprintln(r.out, "\n[stream interrupted]")
		}
		fmt.Fprint(r.out, reply.Message.Content)
	}
	fmt.Fprintln(r.out)
}

func (r *repl) banner() {
	selected := r.state.Selected()
	name := selected
	if p, ok := personas.Lookup(selected); ok {
		name = p.DisplayName
	}
	fmt.Fprintf(r.out, "Chatting with %s. Commands: /switch <persona>, /history, /quit\n", name)
	msgs := r.state.Messages(selected)
	if len(msgs) > 0 {
		fmt.Fprintf(r.out, "%s: %s\n", selected, msgs[len(msgs)-1].Content)
	}
}
