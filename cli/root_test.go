package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should expose start and version subcommands", func(t *testing.T) {
		root := RootCmd()
		names := make([]string, 0)
		for _, cmd := range root.Commands() {
			names = append(names, cmd.Name())
		}
		assert.Contains(t, names, "start")
		assert.Contains(t, names, "version")
	})

	t.Run("Should print build information", func(t *testing.T) {
		root := RootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"version"})
		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "aion")
		assert.Contains(t, out.String(), "commit")
	})
}
