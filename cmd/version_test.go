package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionString(t *testing.T) {
	out := versionString()
	assert.Contains(t, out, "vitrine")
	assert.Contains(t, out, Version)
	assert.Contains(t, out, BuildTime)
	assert.Contains(t, out, GitCommit)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "vitrine")
}
