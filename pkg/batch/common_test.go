package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clog "github.com/jetsonsystems/mediamanager/pkg/log"
)

func TestSaveErrorsNoopWhenEmpty(t *testing.T) {
	name, err := saveErrors(clog.NewNoop(), t.TempDir(), "batch-1", nil)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestSaveErrorsWritesSortedLines(t *testing.T) {
	dir := t.TempDir()
	errs := map[string]error{
		"/photos/b.jpg": assert.AnError,
		"/photos/a.jpg": assert.AnError,
	}

	name, err := saveErrors(clog.NewNoop(), dir, "batch-1", errs)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	contents, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "error importing /photos/a.jpg")
	assert.Less(t, indexOf(string(contents), "a.jpg"), indexOf(string(contents), "b.jpg"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestStringMapHas(t *testing.T) {
	m := StringMap{"/photos/a.jpg": "oid-1"}
	assert.True(t, m.Has("/photos/a.jpg"))
	assert.False(t, m.Has("/photos/b.jpg"))
}

func TestFormatErrorMsg(t *testing.T) {
	msg := formatErrorMsg("/photos/a.jpg", assert.AnError)
	assert.Contains(t, msg, "/photos/a.jpg")
	assert.Contains(t, msg, assert.AnError.Error())
}
