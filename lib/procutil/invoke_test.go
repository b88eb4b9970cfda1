package procutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOutput(t *testing.T) {
	cmd := CommandContext(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, 0)
	require.NoError(t, cmd.Run())
	assert.Contains(t, cmd.Output, "out\n")
	assert.Contains(t, cmd.Output, "err\n")
}

func TestRunFailure(t *testing.T) {
	cmd := CommandContext(context.Background(), []string{"sh", "-c", "echo oops; exit 3"}, time.Minute)
	err := cmd.Run()
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
	assert.Equal(t, "oops\n", cmd.Output)
	assert.Equal(t, -1, ExitCode(context.Canceled))
}

func TestRunTimeout(t *testing.T) {
	cmd := CommandContext(context.Background(), []string{"sh", "-c", "exec sleep 10"}, 50*time.Millisecond)
	err := cmd.Run()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatCmdline(t *testing.T) {
	cmd := CommandContext(context.Background(), []string{"osslsigncode", "sign", "-n", "my program"}, 0)
	assert.Equal(t, `osslsigncode sign -n "my program"`, cmd.FormatCmdline())
}
