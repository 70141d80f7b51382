package optimizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions_EmptyPathGivesDefaults(t *testing.T) {
	opts, err := LoadOptions("")
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)
}

func TestLoadOptions_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mutation_rate: 0.25
tournament_size: 5
weights:
  effort: 0.001
`), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, 0.25, opts.MutationRate)
	assert.Equal(t, 5, opts.TournamentSize)
	assert.Equal(t, 0.001, opts.Weights.Effort)
	assert.Equal(t, DefaultOptions().Weights.FloorViolation, opts.Weights.FloorViolation)
	assert.Equal(t, DefaultOptions().CrossoverRate, opts.CrossoverRate)
}

func TestLoadOptions_Rejects(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"rate.yaml":       "mutation_rate: 1.5\n",
		"tournament.yaml": "tournament_size: 0\n",
		"broken.yaml":     "mutation_rate: [\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := LoadOptions(path)
		assert.Error(t, err, name)
	}

	_, err := LoadOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
