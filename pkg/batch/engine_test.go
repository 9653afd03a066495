package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetsonsystems/mediamanager/pkg/apiv1"
	"github.com/jetsonsystems/mediamanager/pkg/common"
	clog "github.com/jetsonsystems/mediamanager/pkg/log"
	"github.com/jetsonsystems/mediamanager/pkg/probe"
	"github.com/jetsonsystems/mediamanager/pkg/store"
)

type fakeScanner struct {
	images []apiv1.ImageToImport
	err    error
}

func (f *fakeScanner) Scan(root string, opts common.ScanOptions) ([]apiv1.ImageToImport, error) {
	return f.images, f.err
}

// fakeProbe reports a fixed 800x600 JPEG for every path and performs
// no real resizing; Resize writes placeholder bytes to destPath and
// returns that path, so the engine can attach the "resized" file.
type fakeProbe struct {
	probeDelay time.Duration
	failPaths  map[string]bool
}

func (f *fakeProbe) Probe(ctx context.Context, path string, verbose bool) (probe.Metadata, error) {
	if f.probeDelay > 0 {
		time.Sleep(f.probeDelay)
	}
	if f.failPaths[path] {
		return probe.Metadata{}, assert.AnError
	}
	return probe.Metadata{Format: "JPEG", Width: 800, Height: 600, Filesize: 1024}, nil
}

func (f *fakeProbe) Resize(ctx context.Context, sourcePath string, opts probe.ResizeOptions, destPath string) (string, error) {
	if err := os.WriteFile(destPath, []byte("fake-resized-bytes"), 0o644); err != nil {
		return "", err
	}
	return destPath, nil
}

func (f *fakeProbe) OpenStream(path string) (*probe.BufferedStream, error) {
	return nil, assert.AnError
}

// memAdapter is a minimal store.Adapter fake recording every Put,
// BulkPut, and Attach call so the engine's persistence side effects
// can be asserted without a real document store.
type memAdapter struct {
	store.Adapter
	mu       sync.Mutex
	puts     []string
	bulkPut  []store.BulkDoc
	attaches []string
	docs     map[string]json.RawMessage
	rev      map[string]int
}

func (m *memAdapter) ensure() {
	if m.docs == nil {
		m.docs = map[string]json.RawMessage{}
		m.rev = map[string]int{}
	}
}

func (m *memAdapter) Put(ctx context.Context, id string, doc any, expectedRev string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	m.puts = append(m.puts, id)
	m.rev[id]++
	raw, _ := json.Marshal(doc)
	m.docs[id] = raw
	return m.revString(id), nil
}

func (m *memAdapter) BulkPut(ctx context.Context, docs []store.BulkDoc) ([]store.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	m.bulkPut = append(m.bulkPut, docs...)
	results := make([]store.BulkResult, len(docs))
	for i, d := range docs {
		m.rev[d.ID]++
		raw, _ := json.Marshal(d.Doc)
		m.docs[d.ID] = raw
		results[i] = store.BulkResult{ID: d.ID, Rev: m.revString(d.ID)}
	}
	return results, nil
}

func (m *memAdapter) Get(ctx context.Context, id string) (json.RawMessage, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	raw, ok := m.docs[id]
	if !ok {
		return nil, "", common.New(common.KindImportNotFound, "document %s not found", id)
	}
	return raw, m.revString(id), nil
}

func (m *memAdapter) Attach(ctx context.Context, id, name string, data []byte, contentType, expectedRev string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	m.attaches = append(m.attaches, id+"/"+name)
	m.rev[id]++
	return m.revString(id), nil
}

func (m *memAdapter) revString(id string) string {
	return fmt.Sprintf("%d-a", m.rev[id])
}

func drain(events <-chan apiv1.Event) []apiv1.Event {
	var out []apiv1.Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func writeFixtureFiles(t *testing.T, n int) []apiv1.ImageToImport {
	t.Helper()
	dir := t.TempDir()
	images := make([]apiv1.ImageToImport, n)
	for i := 0; i < n; i++ {
		path := dir + "/" + "photo" + string(rune('a'+i)) + ".jpg"
		require.NoError(t, os.WriteFile(path, []byte("fake-jpeg-bytes"), 0o644))
		images[i] = apiv1.ImageToImport{Path: path, Format: "JPEG"}
	}
	return images
}

func TestCreateFromFSHappyPathImportsEveryImage(t *testing.T) {
	images := writeFixtureFiles(t, 3)
	adapter := &memAdapter{}
	eng := New(&fakeScanner{images: images}, &fakeProbe{}, adapter, clog.NewNoop(), t.TempDir(), t.TempDir())

	opts := common.NewImportOptions()
	b, events, err := eng.CreateFromFS(context.Background(), t.TempDir(), opts)
	require.NoError(t, err)

	all := drain(events)
	require.NotEmpty(t, all)
	assert.Equal(t, apiv1.EventStarted, all[0].Type)
	assert.Equal(t, apiv1.EventCompleted, all[len(all)-1].Type)

	var saved int
	for _, e := range all {
		if e.Type == apiv1.EventImageSaved {
			saved++
		}
	}
	assert.Equal(t, 3, saved)
	assert.Equal(t, apiv1.StatusCompleted, b.Status)
	assert.Equal(t, 3, b.NumSuccess)
	assert.Equal(t, 0, b.NumError)
}

func TestCreateFromFSNoFilesFoundIsError(t *testing.T) {
	adapter := &memAdapter{}
	eng := New(&fakeScanner{images: nil}, &fakeProbe{}, adapter, clog.NewNoop(), t.TempDir(), t.TempDir())

	_, _, err := eng.CreateFromFS(context.Background(), t.TempDir(), common.NewImportOptions())
	assert.Error(t, err)
	assert.Equal(t, common.KindNoFilesFound, common.KindOf(err))
}

func TestCreateFromFSRecordsPerImageProbeFailureAndContinues(t *testing.T) {
	images := writeFixtureFiles(t, 2)
	adapter := &memAdapter{}
	fp := &fakeProbe{failPaths: map[string]bool{images[0].Path: true}}
	eng := New(&fakeScanner{images: images}, fp, adapter, clog.NewNoop(), t.TempDir(), t.TempDir())

	b, events, err := eng.CreateFromFS(context.Background(), t.TempDir(), common.NewImportOptions())
	require.NoError(t, err)

	all := drain(events)
	var gotError bool
	for _, e := range all {
		if e.Type == apiv1.EventImageError {
			gotError = true
		}
	}
	assert.True(t, gotError)
	assert.Equal(t, 1, b.NumError)
	assert.Equal(t, 1, b.NumSuccess)
	assert.Equal(t, apiv1.StatusCompleted, b.Status)
}

func TestCreateFromFSCancelMidImportEndsAborted(t *testing.T) {
	images := writeFixtureFiles(t, 5)
	adapter := &memAdapter{}
	fp := &fakeProbe{probeDelay: 50 * time.Millisecond}
	eng := New(&fakeScanner{images: images}, fp, adapter, clog.NewNoop(), t.TempDir(), t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	opts := common.NewImportOptions()
	opts.NumJobs = 1

	b, events, err := eng.CreateFromFS(ctx, t.TempDir(), opts)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	all := drain(events)
	require.NotEmpty(t, all)
	assert.Equal(t, apiv1.EventCompleted, all[len(all)-1].Type)
	assert.Equal(t, apiv1.StatusAborted, b.Status)
}

func TestEngineTransitionRejectsIllegalEdge(t *testing.T) {
	eng := New(nil, nil, nil, clog.NewNoop(), "", "")
	b := apiv1.NewBatch("batch-1", "/photos", time.Now())
	b.Status = apiv1.StatusStarted
	eng.transition(context.Background(), b, apiv1.StatusAborting)
	assert.Equal(t, apiv1.StatusStarted, b.Status)
}

func TestSmallestVariantPicksLeastArea(t *testing.T) {
	variants := []common.VariantSpec{
		{Name: "large", Width: 1200, Height: 1200},
		{Name: "thumb", Width: 100, Height: 100},
	}
	best, ok := smallestVariant(variants)
	require.True(t, ok)
	assert.Equal(t, "thumb", best.Name)
}

func TestSmallestVariantNoneConfigured(t *testing.T) {
	_, ok := smallestVariant(nil)
	assert.False(t, ok)
}

func TestAggregateErrorsCombinesMessages(t *testing.T) {
	err := aggregateErrors(map[string]error{"/a.jpg": assert.AnError})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/a.jpg")
}

func TestAggregateErrorsNilWhenEmpty(t *testing.T) {
	assert.NoError(t, aggregateErrors(nil))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "a.jpg", baseName("/photos/vacation/a.jpg"))
	assert.Equal(t, "a.jpg", baseName("a.jpg"))
}
