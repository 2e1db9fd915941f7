package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesleyorama2/stampede/internal/cli"
)

func TestMain_ExitCodes(t *testing.T) {
	assert.Equal(t, cli.ExitOK, Main([]string{"--version"}))
	assert.Equal(t, cli.ExitConfigError, Main([]string{"run"}))
	assert.Equal(t, cli.ExitConfigError, Main([]string{"run", "--no-such-flag"}))
}
