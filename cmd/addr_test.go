package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddr(t *testing.T) {
	t.Parallel()

	valid := []string{
		"127.0.0.1:8787",
		"localhost:8080",
		":8787",
		"0.0.0.0:80",
		"[::1]:8787",
		":0", // auto-assign
	}
	for _, addr := range valid {
		assert.NoError(t, validateAddr(addr), "addr %q", addr)
	}

	invalid := []string{
		"",
		"127.0.0.1",       // no port
		"127.0.0.1:",      // empty port
		"127.0.0.1:abc",   // non-numeric port
		"127.0.0.1:70000", // port out of range
		"bad host:8080",   // whitespace in host
	}
	for _, addr := range invalid {
		assert.Error(t, validateAddr(addr), "addr %q", addr)
	}
}
