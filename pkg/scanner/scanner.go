// Package scanner implements the Directory Scanner (spec §4.3): walks
// a directory tree and collects admissible image paths, classifying
// file content concurrently under a bounded worker cap.
package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jetsonsystems/mediamanager/pkg/apiv1"
	"github.com/jetsonsystems/mediamanager/pkg/common"
)

// Classifier is the subset of mime.Classifier the scanner needs,
// named here so scanner doesn't import the mime package directly and
// can be tested with a fake.
type Classifier interface {
	ClassifyAndAdmit(path string) (format string, admitted bool, err error)
}

// Scanner walks a directory and classifies candidate image files.
type Scanner struct {
	classifier  Classifier
	concurrency int
}

// New builds a Scanner; concurrency <= 0 defaults to
// common.DefaultScannerConcurrency.
func New(classifier Classifier, concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = common.DefaultScannerConcurrency
	}
	return &Scanner{classifier: classifier, concurrency: concurrency}
}

// Scan walks root per opts and returns every admissible image's path
// and probed format. Output ordering is unspecified (spec §4.3); the
// Import Batch Engine does not rely on it. A fatal walk error (root
// missing, permission denied on root) aborts the whole scan; per-file
// classify errors are tolerated and simply excluded.
func (s *Scanner) Scan(root string, opts common.ScanOptions) ([]apiv1.ImageToImport, error) {
	paths, err := s.collectCandidatePaths(root, opts)
	if err != nil {
		return nil, err
	}
	return s.classifyAll(paths), nil
}

func (s *Scanner) collectCandidatePaths(root string, opts common.ScanOptions) ([]string, error) {
	var paths []string

	info, err := os.Stat(root)
	if err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "stat import dir %s", root)
	}
	if !info.IsDir() {
		return nil, common.New(common.KindInvalidMethodArgument, "%s is not a directory", root)
	}

	if opts.RecursionDepth == 1 {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, common.Wrap(common.KindUnknown, err, "read dir %s", root)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if opts.IgnoreDotfiles && strings.HasPrefix(e.Name(), ".") {
				continue
			}
			paths = append(paths, filepath.Join(root, e.Name()))
		}
		return paths, nil
	}

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && opts.IgnoreDotfiles && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if opts.IgnoreDotfiles && strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if walkErr != nil {
		return nil, common.Wrap(common.KindUnknown, walkErr, "walk %s", root)
	}
	return paths, nil
}

func (s *Scanner) classifyAll(paths []string) []apiv1.ImageToImport {
	type result struct {
		img apiv1.ImageToImport
		ok  bool
	}

	results := make([]result, len(paths))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, p := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p string) {
			defer wg.Done()
			defer func() { <-sem }()

			format, admitted, err := s.classifier.ClassifyAndAdmit(p)
			if err != nil || !admitted {
				return
			}
			results[i] = result{img: apiv1.ImageToImport{Path: p, Format: format}, ok: true}
		}(i, p)
	}
	wg.Wait()

	out := make([]apiv1.ImageToImport, 0, len(paths))
	for _, r := range results {
		if r.ok {
			out = append(out, r.img)
		}
	}
	return out
}
