package formkeep

import (
	"io"
	"log/slog"

	"github.com/hazyhaar/formkeep/formkeep/internal/session"
	"github.com/hazyhaar/formkeep/formkeep/internal/sink"
)

// Sink receives restore/reset notifications and save acknowledgments.
type Sink = sink.Sink

// Notification reports one synthesized DOM event.
type Notification = sink.Notification

// Ack acknowledges a committed save.
type Ack = sink.Ack

// NewStdoutSink creates a sink that writes JSON lines to w (default stdout).
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a sink that POSTs events to url.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	var opts []sink.WebhookOption
	if logger != nil {
		opts = append(opts, sink.WithWebhookLogger(logger))
	}
	if retries > 0 {
		opts = append(opts, sink.WithWebhookRetries(retries))
	}
	return sink.NewWebhook(url, opts...)
}

// NewCallbackSink creates a sink that calls Go functions. Either may be nil.
func NewCallbackSink(onNotify sink.NotifyFunc, onSaved sink.SavedFunc) Sink {
	return sink.NewCallback(onNotify, onSaved)
}

// Prompter asks the reset confirmations and shows the final notice.
type Prompter = session.Prompter

// Status is a point-in-time view of one kept page.
type Status = session.Status

// NewTerminalPrompter prompts on out and reads y/N answers from in.
func NewTerminalPrompter(in io.Reader, out io.Writer) Prompter {
	return session.NewTerminal(in, out)
}

// Answered returns a Prompter with pre-recorded confirmation answers.
func Answered(answers ...bool) Prompter {
	return session.Answered(answers...)
}
