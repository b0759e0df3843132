package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugget/cinebot/internal/agent"
	"github.com/nugget/cinebot/internal/movies"
	"github.com/nugget/cinebot/internal/persona"
	"github.com/nugget/cinebot/internal/session"
)

const chatHelp = `Commands:
  /reset             Start the conversation over
  /persona [name]    Show or switch the persona
  /watchlist         Show the watchlist
  /export <file>     Save the watchlist as JSON
  /import <file>     Replace the watchlist from JSON
  /load <file>       Load a document for questions
  /help              Show this help
  /quit              Leave`

// errQuit ends the REPL without an error.
var errQuit = errors.New("quit")

// chatREPL reads lines from in until EOF or /quit. Plain lines are sent
// as streaming turns; lines starting with "/" are commands.
func chatREPL(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session) error {
	fmt.Fprintf(out, "CineBot (%s). Type /help for commands.\n", sess.Persona().Name)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			err := chatCommand(ctx, out, sess, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		}

		if err := streamReply(ctx, out, sess, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "\nerror: %v\n", err)
		}
	}
}

func streamReply(ctx context.Context, out io.Writer, sess *session.Session, text string) error {
	for ev, err := range sess.Stream(ctx, text) {
		if err != nil {
			return err
		}
		switch ev.Kind {
		case agent.EventChunk:
			fmt.Fprint(out, ev.Chunk.Content)
		case agent.EventToolResult:
			fmt.Fprintf(out, "[%s]\n", ev.Tool.Name)
		case agent.EventDone:
			fmt.Fprintln(out)
		}
	}
	return nil
}

func chatCommand(ctx context.Context, out io.Writer, sess *session.Session, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/reset":
		sess.Reset()
		fmt.Fprintln(out, "Conversation cleared.")
	case "/persona":
		if arg == "" {
			current := sess.Persona().Name
			for _, p := range persona.All() {
				marker := " "
				if p.Name == current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s: %s\n", marker, p.Name, p.Description)
			}
			return nil
		}
		p, err := sess.ChangePersona(arg)
		if err != nil {
			return fmt.Errorf("%w; choose one of: %s", err, strings.Join(persona.Names(), ", "))
		}
		fmt.Fprintf(out, "Persona is now %s. Conversation cleared.\n", p.Name)
	case "/watchlist":
		printWatchlist(out, sess.Watchlist().List())
	case "/export":
		if arg == "" {
			return errors.New("usage: /export <file>")
		}
		data, err := sess.Watchlist().Export()
		if err != nil {
			return err
		}
		if err := os.WriteFile(arg, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %d movies to %s.\n", sess.Watchlist().Len(), arg)
	case "/import":
		if arg == "" {
			return errors.New("usage: /import <file>")
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return err
		}
		n, err := sess.ImportWatchlist(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Loaded %d movies.\n", n)
	case "/load":
		if arg == "" {
			return errors.New("usage: /load <file>")
		}
		content, err := os.ReadFile(arg)
		if err != nil {
			return err
		}
		chunks, err := sess.LoadDocument(ctx, filepath.Base(arg), content)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Loaded %s (%d chunks). Ask away.\n", filepath.Base(arg), chunks)
	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return nil
}

func printWatchlist(out io.Writer, list []movies.Record) {
	if len(list) == 0 {
		fmt.Fprintln(out, "Your watchlist is empty.")
		return
	}
	for i, m := range list {
		year, _, _ := strings.Cut(m.ReleaseDate, "-")
		fmt.Fprintf(out, "%2d. %s", i+1, m.Title)
		if year != "" {
			fmt.Fprintf(out, " (%s)", year)
		}
		fmt.Fprintf(out, "  %.1f  %d min  %s\n", m.Rating, m.Runtime, m.Genres)
	}
}
