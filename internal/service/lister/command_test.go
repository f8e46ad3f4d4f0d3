package lister

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/tsundere-client/internal/domain/directory"
)

// TestRender_Text checks the sentences printed for empty and non-empty lists.
func TestRender_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, FormatText, &domain.Result{Users: []string{"b", "a"}}))
	require.Equal(t, "Users currently connected: b, a\n", buf.String())

	buf.Reset()

	require.NoError(t, Render(&buf, FormatText, &domain.Result{}))
	require.Equal(t, "No users are currently connected.\n", buf.String())
}

// TestRender_Structured ensures json and yaml carry the client and the ordered users.
func TestRender_Structured(t *testing.T) {
	t.Parallel()

	result := &domain.Result{
		Users:          []string{"c", "a"},
		ClientIdentity: "faust",
	}

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, FormatJSON, result))

	var fromJSON listing
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	require.Equal(t, listing{Client: "faust", Users: []string{"c", "a"}}, fromJSON)

	buf.Reset()

	require.NoError(t, Render(&buf, FormatYAML, &domain.Result{ClientIdentity: "faust"}))

	var fromYAML listing
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Equal(t, "faust", fromYAML.Client)
	require.Empty(t, fromYAML.Users)
	require.Contains(t, buf.String(), "users: []")
}

// TestRun_UnknownFormat asserts the format is rejected before any settings are read.
func TestRun_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{
		ConfigPath: "does-not-exist.properties",
		Format:     "xml",
	})
	require.ErrorIs(t, err, errUnknownFormat)
}

// TestRun_MissingConfig verifies the settings failure surfaces with its kind.
func TestRun_MissingConfig(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := Run(context.Background(), &Options{
		ConfigPath: t.TempDir() + "/missing.properties",
		Output:     &buf,
	})
	require.ErrorIs(t, err, domain.ErrConfigLoad)
	require.Empty(t, buf.String())
}
