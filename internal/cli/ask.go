// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask [question]
// Short:   Ask a single question and stream the answer
//
// Examples:
//   chatstream ask "What is the capital of France?"
//   chatstream ask --model haiku "Explain this error: EADDRINUSE"
//   chatstream ask --plain "List three sorting algorithms" > out.txt
//
// With stdout on a terminal the answer is rendered as markdown once it is
// complete. Piped output, or --plain, streams raw text as it arrives.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeranaias/chatstream/internal/session"
)

// askOptions controls how an answer is written.
type askOptions struct {
	Markdown bool // render once complete instead of streaming raw text
	Width    int  // markdown word wrap
	Progress bool // show a character counter on errOut while buffering
	Quiet    bool
}

// HandleAskCommand handles the "ask" command.
func HandleAskCommand(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(cfg, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := detectOutput(args, cfg)
	opts := askOptions{
		Markdown: mode.Markdown,
		Width:    mode.Width,
		Progress: mode.Progress,
		Quiet:    args.Quiet,
	}
	return runAsk(ctx, rt.State, args.Query, os.Stdout, os.Stderr, opts)
}

// runAsk submits question and writes the answer to out. Status lines go to
// errOut so that out carries only the answer.
func runAsk(ctx context.Context, st *session.State, question string, out, errOut io.Writer, opts askOptions) error {
	var onDelta func(string)
	var received int
	if opts.Markdown {
		if opts.Progress {
			onDelta = func(delta string) {
				received += len([]rune(delta))
				fmt.Fprintf(errOut, "\r%s", DimStyle.Render(fmt.Sprintf("Streaming... %d chars", received)))
			}
		}
	} else {
		onDelta = func(delta string) {
			received += len([]rune(delta))
			io.WriteString(out, delta)
		}
	}

	rec, err := st.Submit(ctx, question, onDelta)
	if opts.Markdown && opts.Progress && received > 0 {
		fmt.Fprint(errOut, "\r\033[K")
	}
	if err != nil {
		if !opts.Markdown && received > 0 {
			// Partial raw output already reached out; end its line.
			fmt.Fprintln(out)
		}
		return err
	}

	if opts.Markdown {
		fmt.Fprint(out, renderMarkdown(rec.Response, opts.Width))
	} else if !strings.HasSuffix(rec.Response, "\n") {
		fmt.Fprintln(out)
	}

	if !opts.Quiet && st.Settings().ShowStats {
		fmt.Fprintf(errOut, "%s %s | %s\n", DimStyle.Render("[Stats]"), rec.Model, st.LastStats())
	}
	return nil
}
