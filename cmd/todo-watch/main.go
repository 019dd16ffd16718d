// Command todo-watch prints a live, filtered todo list and reprints it
// whenever the list changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jaekwang-park/todo-sync/internal/client"
	"github.com/jaekwang-park/todo-sync/internal/config"
	"github.com/jaekwang-park/todo-sync/internal/logging"
	"github.com/jaekwang-park/todo-sync/internal/query"
	"github.com/jaekwang-park/todo-sync/internal/reconcile"
	"github.com/jaekwang-park/todo-sync/internal/view"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "todo-watch:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	fs := flag.NewFlagSet("todo-watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		baseURL  = fs.String("url", envOr("TODO_API_URL", "http://localhost:8080"), "API base URL")
		token    = fs.String("token", os.Getenv("TODO_API_TOKEN"), "bearer token")
		filter   = fs.String("filter", "", "filter as URL query, e.g. priority=high&completed=false")
		sortKey  = fs.String("sort", string(reconcile.SortCreatedAt), "sort key: createdAt, title, priority, deadline")
		sortDesc = fs.Bool("desc", true, "sort descending")
		logLevel = fs.String("log-level", "warn", "log level")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := logging.New(*logLevel, "text", stderr)

	values, err := url.ParseQuery(*filter)
	if err != nil {
		return fmt.Errorf("invalid -filter: %w", err)
	}
	f, err := query.ParseFilter(values)
	if err != nil {
		return err
	}
	sc := reconcile.SortConfig{Key: reconcile.SortKey(*sortKey), Direction: reconcile.Asc}
	if *sortDesc {
		sc.Direction = reconcile.Desc
	}
	if !sc.Key.IsValid() {
		return fmt.Errorf("unknown sort key %q", *sortKey)
	}

	c, err := client.New(client.Options{
		BaseURL:           *baseURL,
		Token:             *token,
		RequestsPerSecond: 5,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := view.New(c, logger)
	errc := make(chan error, 1)
	go func() { errc <- v.Run(ctx, view.WithFilter(f), view.WithSort(sc)) }()

	for {
		select {
		case err := <-errc:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case snap := <-v.Updates():
			render(stdout, snap)
		}
	}
}

func render(w io.Writer, s view.Snapshot) {
	fmt.Fprint(w, "\033[H\033[2J")

	status := "live"
	switch {
	case s.Loading:
		status = "loading"
	case !s.Live:
		status = "connecting"
	}
	filter := "none"
	if !s.Filter.IsEmpty() {
		filter = s.Query
	}
	fmt.Fprintf(w, "todos (%d)  filter: %s  sort: %s %s  [%s]\n", len(s.Todos), filter, s.Sort.Key, s.Sort.Direction, status)
	if s.Err != nil {
		fmt.Fprintf(w, "error: %v\n", s.Err)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DONE\tPRIORITY\tDEADLINE\tTITLE\tTAGS")
	for _, t := range s.Todos {
		done := " "
		if t.IsCompleted {
			done = "x"
		}
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.Local().Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "[%s]\t%s\t%s\t%s\t%s\n", done, t.Priority, deadline, t.Title, strings.Join(t.Tags, ","))
	}
	tw.Flush()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
