package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/tsundere-client/internal/config"
	domain "github.com/oshokin/tsundere-client/internal/domain/directory"
	"github.com/oshokin/tsundere-client/internal/logger"
	"github.com/oshokin/tsundere-client/internal/version"
)

const testPassphrase = "mySecretPassphrase"

// newDirectoryServer serves body with status and checks the passphrase header.
func newDirectoryServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.UserAgent() != version.UserAgent() ||
			r.Header.Get(PassphraseHeader) != testPassphrase {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"Unauthorized access"}`))

			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server
}

// writeSettings saves a settings file pointing at url and returns its path.
func writeSettings(t *testing.T, url, username string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, &config.Config{
		APIURL:     url,
		Passphrase: testPassphrase,
		Username:   username,
	}))

	return path
}

// TestFetch_ReturnsUsersInOrder verifies order and length are preserved.
func TestFetch_ReturnsUsersInOrder(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"users":["c","a","b","a"]}`)
	client := New(WithConfigPath(writeSettings(t, server.URL+"/users", "faust")))

	result, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b", "a"}, result.Users)
	require.Equal(t, "faust", result.ClientIdentity)

	users := client.FetchUsers(context.Background())
	require.Equal(t, []string{"c", "a", "b", "a"}, users)
}

// TestFetch_UsesProvidedHTTPClient checks requests go through the injected client.
func TestFetch_UsesProvidedHTTPClient(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"users":["tls"]}`))
	}))
	t.Cleanup(server.Close)

	path := writeSettings(t, server.URL, "faust")

	// The default client does not trust the test certificate.
	_, err := New(WithConfigPath(path)).Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrTransport)

	result, err := New(WithConfigPath(path), WithHTTPClient(server.Client())).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"tls"}, result.Users)
}

// TestFetch_WrongPassphrase checks the header is what authenticates the request.
func TestFetch_WrongPassphrase(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"users":["a"]}`)
	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, &config.Config{
		APIURL:     server.URL,
		Passphrase: "wrong",
		Username:   "faust",
	}))

	_, err := New(WithConfigPath(path)).Fetch(context.Background())

	var statusErr *domain.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

// TestFetch_NonSuccessStatus ensures any non-200 code fails but still records the identity.
func TestFetch_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNoContent} {
		server := newDirectoryServer(t, status, `{"users":["a"]}`)
		client := New(WithConfigPath(writeSettings(t, server.URL, "faust")))

		result, err := client.Fetch(context.Background())
		require.ErrorIs(t, err, domain.ErrUnexpectedStatus, status)
		require.Empty(t, result.Users)
		require.Equal(t, "faust", result.ClientIdentity)

		identity, ok := client.ClientIdentity()
		require.True(t, ok)
		require.Equal(t, "faust", identity)

		require.Empty(t, client.FetchUsers(context.Background()))
	}
}

// TestFetch_MissingConfigKeepsIdentity verifies a settings failure leaves the identity untouched.
func TestFetch_MissingConfigKeepsIdentity(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"users":["a"]}`)
	path := writeSettings(t, server.URL, "faust")
	client := New(WithConfigPath(path))

	_, err := client.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	result, err := client.Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigLoad)
	require.Nil(t, result)

	identity, ok := client.ClientIdentity()
	require.True(t, ok)
	require.Equal(t, "faust", identity)

	users := client.FetchUsers(context.Background())
	require.NotNil(t, users)
	require.Empty(t, users)
}

// TestFetch_MalformedBodies asserts no partial list is ever returned.
func TestFetch_MalformedBodies(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`{"users":["a",1,"c"]}`,
		`{"users":["a",null]}`,
		`{"users":null}`,
		`{"names":["a"]}`,
		`{"users":"a"}`,
		`["a","b"]`,
		`{"users":["a"`,
		``,
	}

	for _, body := range bodies {
		server := newDirectoryServer(t, http.StatusOK, body)
		client := New(WithConfigPath(writeSettings(t, server.URL, "faust")))

		result, err := client.Fetch(context.Background())
		require.ErrorIs(t, err, domain.ErrMalformedResponse, body)
		require.Empty(t, result.Users, body)
		require.Empty(t, client.FetchUsers(context.Background()), body)
	}
}

// TestFetch_EmptyUsers shows an empty list is a success for Fetch and looks like a failure for FetchUsers.
func TestFetch_EmptyUsers(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"users":[],"extra":true}`)
	client := New(WithConfigPath(writeSettings(t, server.URL, "faust")))

	result, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Users)
	require.Empty(t, result.Users)

	require.Empty(t, client.FetchUsers(context.Background()))
}

// TestFetch_TransportFailures covers an unreachable server and an empty URL.
func TestFetch_TransportFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	unreachable := server.URL
	server.Close()

	for _, url := range []string{unreachable, "", "://bad"} {
		client := New(WithConfigPath(writeSettings(t, url, "faust")))

		result, err := client.Fetch(context.Background())
		require.ErrorIs(t, err, domain.ErrTransport, url)
		require.Equal(t, "faust", result.ClientIdentity)
		require.Empty(t, result.Users)
	}
}

// TestFetch_CallTimeout checks the per-request timeout interrupts a slow server.
func TestFetch_CallTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}

		_, _ = w.Write([]byte(`{"users":["late"]}`))
	}))
	t.Cleanup(server.Close)

	client := New(
		WithConfigPath(writeSettings(t, server.URL, "faust")),
		WithCallTimeout(50*time.Millisecond),
	)

	_, err := client.Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestClientIdentity_BeforeFetch asserts the identity is unset initially.
func TestClientIdentity_BeforeFetch(t *testing.T) {
	t.Parallel()

	identity, ok := New().ClientIdentity()
	require.False(t, ok)
	require.Empty(t, identity)
}

// TestFetch_Concurrent runs fetches in parallel, meant to be run with -race.
func TestFetch_Concurrent(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"users":["a","b"]}`)
	client := New(WithConfigPath(writeSettings(t, server.URL, "faust")))

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = client.FetchUsers(context.Background())
			_, _ = client.ClientIdentity()
		}()
	}

	wg.Wait()

	identity, ok := client.ClientIdentity()
	require.True(t, ok)
	require.Equal(t, "faust", identity)
}

// TestFetchUsers_LogsFailureKind verifies each failure kind produces a diagnostic entry.
func TestFetchUsers_LogsFailureKind(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	missing := New(WithConfigPath(filepath.Join(t.TempDir(), "missing.properties")))
	require.Empty(t, missing.FetchUsers(ctx))

	server := newDirectoryServer(t, http.StatusInternalServerError, ``)
	failing := New(WithConfigPath(writeSettings(t, server.URL, "faust")))
	require.Empty(t, failing.FetchUsers(ctx))

	errorsLogged := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errorsLogged, 2)
	require.Equal(t, "Error loading config file", errorsLogged[0].Message)
	require.Equal(t, "Failed to connect", errorsLogged[1].Message)
	require.EqualValues(t, http.StatusInternalServerError, errorsLogged[1].ContextMap()["status_code"])
}

// TestDecodeUsers checks the strict decoding rules directly.
func TestDecodeUsers(t *testing.T) {
	t.Parallel()

	users, err := decodeUsers([]byte(`{"users":["", "b"]}`))
	require.NoError(t, err)
	require.Equal(t, []string{"", "b"}, users)

	_, err = decodeUsers([]byte(`{"users":[null]}`))
	require.ErrorIs(t, err, errNotAString)

	_, err = decodeUsers([]byte(`{}`))
	require.ErrorIs(t, err, errUsersMissing)
}

// TestCallContext checks timeout vs cancel-only behavior of callContext.
func TestCallContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := callContext(context.Background(), 0)
	cancel()

	_, ok := ctx.Deadline()
	require.False(t, ok)

	ctx, cancel = callContext(context.Background(), 10*time.Millisecond)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestFetch_InvalidTimeoutIsIgnored checks a bad api.timeout still stores the identity and fetches.
func TestFetch_InvalidTimeoutIsIgnored(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"users":["a","b"]}`)

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	contents := "api.url=" + server.URL + "\nx.passphrase=" + testPassphrase + "\nusername=faust\napi.timeout=soon\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), config.DefaultFilePermissions))

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	client := New(WithConfigPath(path))

	result, err := client.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, result.Users)

	identity, ok := client.ClientIdentity()
	require.True(t, ok)
	require.Equal(t, "faust", identity)

	require.Equal(t, 1, logs.FilterMessage("Ignoring invalid timeout setting").Len())
}

// TestFetch_ResponseSizeLimit rejects bodies over the cap and accepts one exactly at it.
func TestFetch_ResponseSizeLimit(t *testing.T) {
	t.Parallel()

	const body = `{"users":["a","b"]}`

	server := newDirectoryServer(t, http.StatusOK, body)
	path := writeSettings(t, server.URL, "faust")

	atLimit := New(WithConfigPath(path))
	atLimit.maxResponseSize = int64(len(body))

	result, err := atLimit.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, result.Users)

	overLimit := New(WithConfigPath(path))
	overLimit.maxResponseSize = int64(len(body)) - 1

	result, err = overLimit.Fetch(context.Background())
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
	require.ErrorIs(t, err, errResponseTooLarge)
	require.Empty(t, result.Users)
	require.Equal(t, "faust", result.ClientIdentity)
}

// writeEventSettings saves a settings file with both endpoints.
func writeEventSettings(t *testing.T, usersURL, eventsURL string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, &config.Config{
		APIURL:     usersURL,
		EventsURL:  eventsURL,
		Passphrase: testPassphrase,
		Username:   "faust",
	}))

	return path
}

// TestFetchEvents_ReturnsEventsInServerOrder verifies decoding and ordering of events.
func TestFetchEvents_ReturnsEventsInServerOrder(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"events":[
		{"timestamp":"2025-03-01 12:00:05","message":"/proj/a.gzf: checkout granted (alice)"},
		{"timestamp":"2025-03-01 12:00:01","message":"repository created (bob)"}
	]}`)
	client := New(WithConfigPath(writeEventSettings(t, server.URL+"/users", server.URL+"/events")))

	events, err := client.FetchEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "/proj/a.gzf: checkout granted (alice)", events[0].Message)
	require.Equal(t, time.Date(2025, 3, 1, 12, 0, 5, 0, time.Local), events[0].Timestamp)
	require.Equal(t, "bob", events[1].User())

	identity, ok := client.ClientIdentity()
	require.True(t, ok)
	require.Equal(t, "faust", identity)
}

// TestFetchEvents_Empty checks an empty window is a success.
func TestFetchEvents_Empty(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"events":[]}`)
	client := New(WithConfigPath(writeEventSettings(t, server.URL, server.URL)))

	events, err := client.FetchEvents(context.Background())
	require.NoError(t, err)
	require.NotNil(t, events)
	require.Empty(t, events)
}

// TestFetchEvents_NotConfigured asserts an empty api.events.url is reported before any request.
func TestFetchEvents_NotConfigured(t *testing.T) {
	t.Parallel()

	server := newDirectoryServer(t, http.StatusOK, `{"events":[]}`)
	client := New(WithConfigPath(writeSettings(t, server.URL, "faust")))

	events, err := client.FetchEvents(context.Background())
	require.ErrorIs(t, err, domain.ErrEventsNotConfigured)
	require.Nil(t, events)
}

// TestFetchEvents_Failures covers the same error kinds as the users fetch.
func TestFetchEvents_Failures(t *testing.T) {
	t.Parallel()

	rejected := newDirectoryServer(t, http.StatusInternalServerError, ``)
	client := New(WithConfigPath(writeEventSettings(t, rejected.URL, rejected.URL)))

	_, err := client.FetchEvents(context.Background())
	require.ErrorIs(t, err, domain.ErrUnexpectedStatus)

	missing := New(WithConfigPath(filepath.Join(t.TempDir(), "missing.properties")))

	_, err = missing.FetchEvents(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigLoad)

	bodies := []string{
		`{"events":null}`,
		`{"users":["a"]}`,
		`{"events":[null]}`,
		`{"events":[{"message":"no time"}]}`,
		`{"events":[{"timestamp":"2025-03-01 12:00:00"}]}`,
		`{"events":[{"timestamp":"yesterday","message":"x"}]}`,
		`{"events":[{"timestamp":"2025-03-01 12:00:00","message":7}]}`,
	}

	for _, body := range bodies {
		server := newDirectoryServer(t, http.StatusOK, body)
		client := New(WithConfigPath(writeEventSettings(t, server.URL, server.URL)))

		events, err := client.FetchEvents(context.Background())
		require.ErrorIs(t, err, domain.ErrMalformedResponse, body)
		require.Nil(t, events, body)
	}
}
