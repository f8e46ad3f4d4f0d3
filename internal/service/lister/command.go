package lister

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/tsundere-client/internal/domain/directory"
	"github.com/oshokin/tsundere-client/internal/logger"
	"github.com/oshokin/tsundere-client/internal/service/directory"
)

// Output formats accepted by Run.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var errUnknownFormat = errors.New("unknown output format")

// Options controls a single listing.
type Options struct {
	// ConfigPath is the settings file, empty means tsundere.properties in the working directory.
	ConfigPath string
	// Format is one of FormatText, FormatJSON or FormatYAML. Empty means text.
	Format string
	// Timeout overrides api.timeout from the settings file when positive.
	Timeout time.Duration
	// Output receives the rendered list, os.Stdout when nil.
	Output io.Writer
}

// listing is the document rendered for json and yaml output.
type listing struct {
	Client string   `json:"client" yaml:"client"`
	Users  []string `json:"users"  yaml:"users"`
}

// Run fetches the connected users once and writes them to opts.Output.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tsundere-users")

	// Validate the format before any settings are read.
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return err
	}

	ctx = logger.WithFields(ctx, "config", opts.ConfigPath, "format", format)

	// Fetch the users with settings from configuration file.
	result, err := newClient(opts).Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}

	logger.InfoKV(ctx, "Users fetched", "count", len(result.Users), "client", result.ClientIdentity)

	// Print the list.
	return Render(outputOf(opts), format, result)
}

func normalizeFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		format = FormatText
	}

	if !IsKnownFormat(format) {
		return "", fmt.Errorf("%w: %q", errUnknownFormat, raw)
	}

	return format, nil
}

func newClient(opts *Options) *directory.Client {
	return directory.New(
		directory.WithConfigPath(opts.ConfigPath),
		directory.WithCallTimeout(opts.Timeout),
	)
}

func outputOf(opts *Options) io.Writer {
	if opts.Output == nil {
		return os.Stdout
	}

	return opts.Output
}

// IsKnownFormat reports whether format can be rendered.
func IsKnownFormat(format string) bool {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// Render writes result to w in the given format.
func Render(w io.Writer, format string, result *domain.Result) error {
	doc := listing{
		Client: result.ClientIdentity,
		Users:  result.Users,
	}

	if doc.Users == nil {
		doc.Users = []string{}
	}

	switch format {
	case FormatText:
		_, err := fmt.Fprintln(w, describe(result.Users))

		return err
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		return encoder.Encode(doc)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)

		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return encoder.Close()
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

func describe(users []string) string {
	if len(users) == 0 {
		return "No users are currently connected."
	}

	return "Users currently connected: " + strings.Join(users, ", ")
}
