package lister

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/tsundere-client/internal/domain/directory"
	"github.com/oshokin/tsundere-client/internal/logger"
)

// eventEntry is one event of the json and yaml output.
type eventEntry struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Message   string `json:"message"   yaml:"message"`
}

// eventListing is the document rendered for json and yaml output.
type eventListing struct {
	Events []eventEntry `json:"events" yaml:"events"`
}

// RunEvents fetches the recent repository events once and writes them to opts.Output.
func RunEvents(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tsundere-events")

	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return err
	}

	ctx = logger.WithFields(ctx, "config", opts.ConfigPath, "format", format)

	events, err := newClient(opts).FetchEvents(ctx)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}

	logger.InfoKV(ctx, "Events fetched", "count", len(events))

	// Oldest first, the server does not promise any order.
	domain.SortEvents(events)

	return RenderEvents(outputOf(opts), format, events)
}

// RenderEvents writes events to w in the given format.
// Text output prints one "timestamp - message" line per event and leaves out
// a timestamp equal to the one on the previous line.
func RenderEvents(w io.Writer, format string, events []domain.Event) error {
	switch format {
	case FormatText:
		return writeEventLines(w, events)
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		return encoder.Encode(eventDocument(events))
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)

		if err := encoder.Encode(eventDocument(events)); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return encoder.Close()
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

func writeEventLines(w io.Writer, events []domain.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No recent repository events.")

		return err
	}

	var previous string

	for _, event := range events {
		timestamp := event.Timestamp.Format(domain.EventTimeLayout)

		line := timestamp + " - " + event.Message
		if timestamp == previous {
			line = event.Message
		}

		previous = timestamp

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}

func eventDocument(events []domain.Event) eventListing {
	doc := eventListing{
		Events: make([]eventEntry, 0, len(events)),
	}

	for _, event := range events {
		doc.Events = append(doc.Events, eventEntry{
			Timestamp: event.Timestamp.Format(domain.EventTimeLayout),
			Message:   event.Message,
		})
	}

	return doc
}
