package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"filings-rag-be/pkg/graph"
	"filings-rag-be/pkg/session"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	dimColor    = color.New(color.Faint)
	okColor     = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed, color.Bold)
	routeColor  = color.New(color.FgYellow)
)

func printError(w io.Writer, err error) {
	errColor.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}

// progressPrinter prints one line per finished workflow node.
func progressPrinter(w io.Writer) graph.Observer {
	return func(ev graph.Event) {
		status := okColor.Sprint("ok")
		if ev.Err != nil {
			status = errColor.Sprint("failed")
		}
		dimColor.Fprintf(w, "  %2d %-24s %6s ", ev.Step, ev.Node, ev.Duration.Round(time.Millisecond))
		fmt.Fprintln(w, status)
	}
}

func printResult(w io.Writer, res session.Result) {
	headerColor.Fprintln(w, "Answer")
	fmt.Fprintln(w, strings.TrimSpace(res.Answer))
	fmt.Fprintln(w)

	routeColor.Fprintf(w, "route %s", res.RoutingDecision)
	dimColor.Fprintf(w, "  documents %d  retries %d  session %s\n",
		len(res.DocumentsUsed), res.RetryCount, res.SessionInfo.SessionID)

	if len(res.Citations) > 0 {
		headerColor.Fprintln(w, "Sources")
		for i, c := range res.Citations {
			fmt.Fprintf(w, "  [%d] %-13s %-12s %.2f  %s\n", i+1, c.SourceType, c.DocumentID, c.RelevanceScore, excerpt(c.Excerpt, 60))
		}
	}
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

func printSessions(w io.Writer, list []session.Info) {
	if len(list) == 0 {
		dimColor.Fprintln(w, "no sessions")
		return
	}
	headerColor.Fprintf(w, "%-40s %-20s %6s  %s\n", "SESSION", "USER", "TURNS", "LAST ACTIVE")
	for _, s := range list {
		marker := " "
		if s.Active {
			marker = okColor.Sprint("*")
		}
		fmt.Fprintf(w, "%-40s %-20s %6d  %s %s\n",
			s.SessionID, s.UserID, s.ConversationLength, s.LastActive.Local().Format(time.DateTime), marker)
	}
}
