package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch-ai/firewatch/internal/conf"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"verify", "stream", "serve", "config"})
}

func TestInvalidSettingsStopCommandsBeforeTheyRun(t *testing.T) {
	// zero settings fail validation: no FIRMS source, no detector labels
	root := RootCommand(&conf.Settings{})
	root.SetArgs([]string{"verify"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	var ve conf.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Errors)
}

func TestConfigShowSkipsValidation(t *testing.T) {
	settings := &conf.Settings{}
	settings.FIRMS.MapKey = "abcdef0123456789"

	root := RootCommand(settings)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "********")
	assert.NotContains(t, out.String(), "abcdef0123456789")
}

func TestFlagsWriteIntoSettings(t *testing.T) {
	settings := &conf.Settings{}
	root := RootCommand(settings)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--mapkey", "k123", "config", "show"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "k123", settings.FIRMS.MapKey)
}
