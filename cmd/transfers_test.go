package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItem(t *testing.T) {
	url, path, err := parseItem("https://cdn.example.com/a.pak?sig=abc=/games/a.pak")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.pak?sig=abc", url)
	assert.Equal(t, "/games/a.pak", path)

	for _, bad := range []string{"no-separator", "=path", "https://x/a="} {
		_, _, err := parseItem(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "download", "upload", "launch", "publish", "config"} {
		assert.True(t, names[want], want)
	}
}
