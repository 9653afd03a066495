package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	clog "github.com/jetsonsystems/mediamanager/pkg/log"
)

const (
	logFile      string = "import-errors-{batch}.log"
	workerPrefix string = "[batch] "
)

// saveErrors writes one line per recorded failure to a timestamped
// file under logsDir, logging each line as it goes, and returns the
// file's name (empty if there was nothing to record).
func saveErrors(logger clog.PluggableLoggerInterface, logsDir, batchID string, errs map[string]error) (string, error) {
	if len(errs) == 0 {
		return "", nil
	}

	paths := make([]string, 0, len(errs))
	for p := range errs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("import-errors_%s_%s.txt", batchID, timestamp)
	file, err := os.Create(filepath.Join(logsDir, filename))
	if err != nil {
		logger.Error(workerPrefix+"failed to create error log: %s", err.Error())
		return "", fmt.Errorf("%w", err)
	}
	defer file.Close()

	for _, p := range paths {
		msg := formatErrorMsg(p, errs[p])
		logger.Error(workerPrefix + msg)
		fmt.Fprintln(file, msg)
	}
	return filename, nil
}

func formatErrorMsg(path string, err error) string {
	return fmt.Sprintf("error importing %s: %s", path, err.Error())
}
