package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magiconair/properties"
)

// Config holds the settings read from the client's properties file.
// Absent keys are kept as empty values, nothing beyond the file itself is required.
type Config struct {
	// APIURL is the full URL of the directory service endpoint.
	APIURL string
	// EventsURL is the full URL of the repository events endpoint, optional.
	EventsURL string
	// Passphrase is the shared secret sent in the X-Passphrase header.
	Passphrase string
	// Username is the display name of this client.
	Username string
	// Timeout bounds a single directory request. Zero leaves the transport default in place.
	Timeout time.Duration
}

const (
	// DefaultConfigFilename is the settings file looked up in the working directory.
	DefaultConfigFilename = "tsundere.properties"

	// KeyAPIURL is the properties key of the directory endpoint.
	KeyAPIURL = "api.url"
	// KeyEventsURL is the properties key of the repository events endpoint.
	KeyEventsURL = "api.events.url"
	// KeyPassphrase is the properties key of the shared secret.
	KeyPassphrase = "x.passphrase"
	// KeyUsername is the properties key of the client display name.
	KeyUsername = "username"
	// KeyTimeout is the optional properties key holding a Go duration.
	KeyTimeout = "api.timeout"

	// DefaultFilePermissions is the permission used when writing settings,
	// the file contains the passphrase.
	DefaultFilePermissions = 0o600
)

var (
	// ErrInvalidTimeout is returned together with the loaded settings
	// when api.timeout is not a non-negative duration.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// DefaultPath returns the settings path inside the current working directory.
func DefaultPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return DefaultConfigFilename
	}

	return filepath.Join(wd, DefaultConfigFilename)
}

// Load reads the properties file at path. An empty path means DefaultPath.
// Values are taken literally: ${...} references are not expanded.
//
// A malformed api.timeout does not discard the file: the settings are
// returned with a zero Timeout alongside an error matching ErrInvalidTimeout.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	loader := &properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}

	props, err := loader.LoadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := &Config{
		APIURL:     props.GetString(KeyAPIURL, ""),
		EventsURL:  props.GetString(KeyEventsURL, ""),
		Passphrase: props.GetString(KeyPassphrase, ""),
		Username:   props.GetString(KeyUsername, ""),
	}

	if raw, ok := props.Get(KeyTimeout); ok && strings.TrimSpace(raw) != "" {
		timeout, err := parseTimeout(raw)
		if err != nil {
			return cfg, err
		}

		cfg.Timeout = timeout
	}

	return cfg, nil
}

// Save writes cfg to path in properties format. An empty path means DefaultPath.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultPath()
	}

	props := properties.NewProperties()
	props.DisableExpansion = true

	values := [][2]string{
		{KeyAPIURL, cfg.APIURL},
		{KeyPassphrase, cfg.Passphrase},
		{KeyUsername, cfg.Username},
	}

	if cfg.EventsURL != "" {
		values = append(values, [2]string{KeyEventsURL, cfg.EventsURL})
	}

	if cfg.Timeout > 0 {
		values = append(values, [2]string{KeyTimeout, cfg.Timeout.String()})
	}

	for _, kv := range values {
		if _, _, err := props.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("set %s: %w", kv[0], err)
		}
	}

	var buf bytes.Buffer
	if _, err := props.Write(&buf, properties.UTF8); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), buf.Bytes(), DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

func parseTimeout(raw string) (time.Duration, error) {
	timeout, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidTimeout, raw, err)
	}

	if timeout < 0 {
		return 0, fmt.Errorf("%w %q: must not be negative", ErrInvalidTimeout, raw)
	}

	return timeout, nil
}
