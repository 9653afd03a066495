package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetsonsystems/mediamanager/pkg/common"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mmcat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  baseURL: http://localhost:5984
  database: catalog
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gm", cfg.Probe.Binary)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRequiresStoreBaseURL(t *testing.T) {
	path := writeConfig(t, `
store:
  database: catalog
`)
	_, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, common.KindInvalidConfig, common.KindOf(err))
}

func TestLoadRequiresStoreDatabase(t *testing.T) {
	path := writeConfig(t, `
store:
  baseURL: http://localhost:5984
`)
	_, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, common.KindInvalidConfig, common.KindOf(err))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
store:
  baseURL: http://localhost:5984
  database: catalog
notAField: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadParsesImportDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  baseURL: http://localhost:5984
  database: catalog
import:
  numJobs: 4
  desiredVariants:
    - name: thumb
      format: JPEG
      width: 200
      height: 200
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Import.NumJobs)
	require.Len(t, cfg.Import.DesiredVariants, 1)
	assert.Equal(t, "thumb", cfg.Import.DesiredVariants[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
	assert.Equal(t, common.KindInvalidConfig, common.KindOf(err))
}
