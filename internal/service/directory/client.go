package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oshokin/tsundere-client/internal/config"
	domain "github.com/oshokin/tsundere-client/internal/domain/directory"
	"github.com/oshokin/tsundere-client/internal/logger"
	"github.com/oshokin/tsundere-client/internal/version"
)

const (
	// PassphraseHeader is the request header carrying the shared secret.
	PassphraseHeader = "X-Passphrase"

	// DefaultMaxResponseSize caps how much of a response body is read.
	DefaultMaxResponseSize int64 = 8 << 20
)

var (
	// errUsersMissing is returned when the body has no usable users array.
	errUsersMissing = errors.New("users array is missing")
	// errNotAString is returned for a null element in the users array.
	errNotAString = errors.New("user entry is not a string")
	// errEventsMissing is returned when the body has no usable events array.
	errEventsMissing = errors.New("events array is missing")
	// errInvalidEvent is returned for a null event or one without timestamp or message.
	errInvalidEvent = errors.New("invalid event entry")
	// errResponseTooLarge is returned when a body exceeds the read cap.
	errResponseTooLarge = errors.New("response body too large")
)

// Client fetches the connected users from the directory service.
// It is safe for concurrent use.
type Client struct {
	// configPath is the settings file read on every fetch; empty means the working directory default.
	configPath string
	// httpClient sends the directory requests.
	httpClient *http.Client
	// callTimeout overrides api.timeout from the settings file when positive.
	callTimeout time.Duration
	// maxResponseSize is the largest body accepted from the service.
	maxResponseSize int64

	// identity is the display name stored by the latest fetch that loaded its settings.
	identity atomic.Pointer[string]
}

// Option configures client behaviour.
type Option func(*Client)

// WithConfigPath sets the settings file read by each fetch.
func WithConfigPath(path string) Option {
	return func(c *Client) {
		c.configPath = path
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithCallTimeout sets a timeout for each request, taking precedence over api.timeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// New creates a directory client.
func New(opts ...Option) *Client {
	client := &Client{
		httpClient:      http.DefaultClient,
		maxResponseSize: DefaultMaxResponseSize,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Fetch loads the settings and requests the current user list.
//
// A settings failure returns ErrConfigLoad and a nil result without touching
// the stored identity. Once the settings are loaded the identity is replaced,
// and every later failure returns a result holding that identity and no users.
func (c *Client) Fetch(ctx context.Context) (*domain.Result, error) {
	// Load settings and record the identity before any network work.
	cfg, err := c.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.Result{
		Users:          []string{},
		ClientIdentity: cfg.Username,
	}

	body, err := c.get(ctx, cfg, cfg.APIURL)
	if err != nil {
		return result, err
	}

	users, err := decodeUsers(body)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}

	result.Users = users

	return result, nil
}

// FetchUsers returns the current user list, or an empty list on any failure.
// Failures are logged and not returned, use Fetch to tell them apart.
func (c *Client) FetchUsers(ctx context.Context) []string {
	result, err := c.Fetch(ctx)
	if err != nil {
		logFailure(ctx, err)

		return []string{}
	}

	return result.Users
}

// FetchEvents requests the recent repository events from api.events.url.
// Events are returned in server order. Errors follow Fetch, plus
// ErrEventsNotConfigured when the endpoint is not set.
func (c *Client) FetchEvents(ctx context.Context) ([]domain.Event, error) {
	cfg, err := c.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.EventsURL == "" {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrEventsNotConfigured, config.KeyEventsURL)
	}

	body, err := c.get(ctx, cfg, cfg.EventsURL)
	if err != nil {
		return nil, err
	}

	events, err := decodeEvents(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}

	return events, nil
}

// ClientIdentity returns the display name stored by the latest fetch.
// The second value is false until a fetch has loaded its settings.
func (c *Client) ClientIdentity() (string, bool) {
	identity := c.identity.Load()
	if identity == nil {
		return "", false
	}

	return *identity, true
}

// loadSettings reads the settings file and stores the configured identity.
// A malformed api.timeout is logged and the request goes out without one.
func (c *Client) loadSettings(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)

	switch {
	case err == nil:
	case errors.Is(err, config.ErrInvalidTimeout) && cfg != nil:
		logger.WarnKV(ctx, "Ignoring invalid timeout setting", "key", config.KeyTimeout, "error", err)
	default:
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}

	identity := cfg.Username
	c.identity.Store(&identity)

	return cfg, nil
}

// get performs an authenticated GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, cfg *config.Config, url string) ([]byte, error) {
	timeout := cfg.Timeout
	if c.callTimeout > 0 {
		timeout = c.callTimeout
	}

	callCtx, cancel := callContext(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrTransport, err)
	}

	req.Header.Set(PassphraseHeader, cfg.Passphrase)
	req.Header.Set("User-Agent", version.UserAgent())

	logger.DebugKV(ctx, "Requesting directory", "url", req.URL.Redacted())

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	// Ensure the body is released on every path.
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, &domain.StatusError{StatusCode: response.StatusCode}
	}

	// Read one byte past the cap to tell "exactly at the limit" from "over it".
	body, err := io.ReadAll(io.LimitReader(response.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrTransport, err)
	}

	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w: %w: limit is %d bytes",
			domain.ErrMalformedResponse, errResponseTooLarge, c.maxResponseSize)
	}

	return body, nil
}

// usersResponse is the directory body. Pointers tell null apart from "".
type usersResponse struct {
	Users []*string `json:"users"`
}

// decodeUsers extracts the users array, rejecting anything but a list of strings.
func decodeUsers(body []byte) ([]string, error) {
	var payload usersResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	if payload.Users == nil {
		return nil, errUsersMissing
	}

	users := make([]string, 0, len(payload.Users))

	for i, user := range payload.Users {
		if user == nil {
			return nil, fmt.Errorf("%w: index %d", errNotAString, i)
		}

		users = append(users, *user)
	}

	return users, nil
}

// eventPayload is one entry of the events body.
type eventPayload struct {
	Timestamp *string `json:"timestamp"`
	Message   *string `json:"message"`
}

// eventsResponse is the events body.
type eventsResponse struct {
	Events []*eventPayload `json:"events"`
}

// decodeEvents extracts the events array; every entry needs a parsable timestamp and a message.
func decodeEvents(body []byte) ([]domain.Event, error) {
	var payload eventsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	if payload.Events == nil {
		return nil, errEventsMissing
	}

	events := make([]domain.Event, 0, len(payload.Events))

	for i, entry := range payload.Events {
		if entry == nil || entry.Timestamp == nil || entry.Message == nil {
			return nil, fmt.Errorf("%w: index %d", errInvalidEvent, i)
		}

		timestamp, err := time.ParseInLocation(domain.EventTimeLayout, *entry.Timestamp, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: index %d: %w", errInvalidEvent, i, err)
		}

		events = append(events, domain.Event{
			Timestamp: timestamp,
			Message:   *entry.Message,
		})
	}

	return events, nil
}

// callContext returns a context with the timeout if positive,
// otherwise a cancellable child context without a deadline.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

// logFailure writes a diagnostic entry for a failed fetch.
func logFailure(ctx context.Context, err error) {
	var statusErr *domain.StatusError

	switch {
	case errors.Is(err, domain.ErrConfigLoad):
		logger.ErrorKV(ctx, "Error loading config file", "error", err)
	case errors.As(err, &statusErr):
		logger.ErrorKV(ctx, "Failed to connect", "status_code", statusErr.StatusCode)
	default:
		logger.ErrorKV(ctx, "Directory request failed", "error", err)
	}
}
