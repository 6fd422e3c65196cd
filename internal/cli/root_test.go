package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "regeindary", cmd.Use)
	assert.Contains(t, cmd.Long, "registries")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"import", "preview", "match", "status", "sample", "coverage", "indexes", "websites"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)
}

func TestImportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	importCmd, _, err := cmd.Find([]string{"import"})
	require.NoError(t, err)

	levelFlag := importCmd.Flags().Lookup("level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "entities", levelFlag.DefValue)

	strategyFlag := importCmd.Flags().Lookup("strategy")
	require.NotNil(t, strategyFlag)
	assert.Equal(t, "insert", strategyFlag.DefValue)

	yesFlag := importCmd.Flags().Lookup("yes")
	require.NotNil(t, yesFlag)
	assert.Equal(t, "y", yesFlag.Shorthand)
	assert.Equal(t, "false", yesFlag.DefValue)
}

func TestMatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	matchCmd, _, err := cmd.Find([]string{"match"})
	require.NoError(t, err)

	for _, name := range []string{"registry", "limit", "create-orphans", "batch-size"} {
		assert.NotNil(t, matchCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "0", matchCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "false", matchCmd.Flags().Lookup("create-orphans").DefValue)
}

func TestSampleCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sampleCmd, _, err := cmd.Find([]string{"sample"})
	require.NoError(t, err)

	require.NotNil(t, sampleCmd.Flags().Lookup("no-original"))
	require.NotNil(t, sampleCmd.Flags().Lookup("seed"))
}

func TestCommandHelp(t *testing.T) {
	cmd := NewRootCommand()

	assert.Contains(t, cmd.Short, "Regeindary")
	assert.Contains(t, cmd.Long, "filings")
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
