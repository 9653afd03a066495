// Package store implements the Store Adapter (spec §4.1): CRUD,
// compare-and-swap writes, bulk write/fetch, attachment upload, and
// view queries against a CouchDB-shaped document store. The document
// store itself is an external collaborator (spec Non-goals); this
// package is the thin REST client boundary, the only component
// allowed to mutate revisions.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/containers/common/pkg/retry"

	"github.com/jetsonsystems/mediamanager/pkg/common"
)

// Doc is the minimal envelope every stored document shares: an id and
// a store-managed revision token, which callers must treat as
// opaque.
type Doc struct {
	ID       string          `json:"_id"`
	Rev      string          `json:"_rev,omitempty"`
	Deleted  bool            `json:"_deleted,omitempty"`
	Body     json.RawMessage `json:"-"`
}

// BulkResult is one element of bulk_put's per-document result.
type BulkResult struct {
	ID    string
	Rev   string
	Error error
}

// Row is one element of a view query's result (spec §4.4).
type Row struct {
	Key   []any
	ID    string
	Value json.RawMessage
	Doc   json.RawMessage
}

// ViewQuery shapes a view(name, ...) call (spec §4.1/§4.4).
type ViewQuery struct {
	StartKey     []any
	EndKey       []any
	Keys         [][]any
	IncludeDocs  bool
	Reduce       bool
	Descending   bool
	Limit        int
	GroupLevel   int
}

// Adapter is the Store Adapter contract; pkg/view and pkg/catalog
// depend on this interface, not the concrete HTTP client, so they can
// be tested against an in-memory fake.
type Adapter interface {
	Get(ctx context.Context, id string) (json.RawMessage, string, error)
	Head(ctx context.Context, id string) (string, error)
	Put(ctx context.Context, id string, doc any, expectedRev string) (string, error)
	BulkPut(ctx context.Context, docs []BulkDoc) ([]BulkResult, error)
	BulkFetch(ctx context.Context, ids []string) ([]FetchResult, error)
	Attach(ctx context.Context, id, name string, data []byte, contentType string, expectedRev string) (string, error)
	View(ctx context.Context, designDoc, view string, q ViewQuery) ([]Row, error)
	Destroy(ctx context.Context, docs []BulkDoc) error
}

// BulkDoc is one document passed to BulkPut/Destroy.
type BulkDoc struct {
	ID  string
	Rev string
	Doc any
}

// FetchResult is one element of BulkFetch's result, in request order.
type FetchResult struct {
	ID      string
	Doc     json.RawMessage
	Rev     string
	Missing bool
}

// HTTPStore is the concrete Adapter backed by a CouchDB-shaped REST
// API, per spec §4.1/§6. No CouchDB client exists anywhere in this
// module's source corpus, so the transport is a direct net/http +
// encoding/json client (see DESIGN.md).
type HTTPStore struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	retryOpts  *retry.Options
}

// New builds an HTTPStore rooted at baseURL/database.
func New(baseURL, database, username, password string) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/") + "/" + database,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryOpts:  &retry.Options{MaxRetry: 3, Delay: 500 * time.Millisecond},
	}
}

func (s *HTTPStore) docURL(id string) string {
	return s.baseURL + "/" + url.PathEscape(id)
}

func (s *HTTPStore) Get(ctx context.Context, id string) (json.RawMessage, string, error) {
	resp, err := s.do(ctx, http.MethodGet, s.docURL(id), nil, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", common.New(common.KindImportNotFound, "document %s not found", id)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, "", err
	}
	rev := extractRev(body)
	return body, rev, nil
}

func (s *HTTPStore) Head(ctx context.Context, id string) (string, error) {
	resp, err := s.do(ctx, http.MethodHead, s.docURL(id), nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", common.New(common.KindImportNotFound, "document %s not found", id)
	}
	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

func (s *HTTPStore) Put(ctx context.Context, id string, doc any, expectedRev string) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", common.Wrap(common.KindUnknown, err, "marshal doc %s", id)
	}

	target := s.docURL(id)
	if expectedRev != "" {
		target += "?rev=" + url.QueryEscape(expectedRev)
	}
	resp, err := s.do(ctx, http.MethodPut, target, bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", common.New(common.KindConflict, "conflict writing %s", id)
	}
	respBody, err := readBody(resp)
	if err != nil {
		return "", err
	}
	return extractPutRev(respBody), nil
}

func (s *HTTPStore) BulkPut(ctx context.Context, docs []BulkDoc) ([]BulkResult, error) {
	payload := struct {
		Docs []json.RawMessage `json:"docs"`
	}{}
	for _, d := range docs {
		raw, err := bulkDocBody(d)
		if err != nil {
			return nil, err
		}
		payload.Docs = append(payload.Docs, raw)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "marshal bulk_docs")
	}

	resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/_bulk_docs", bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw []struct {
		ID    string `json:"id"`
		Rev   string `json:"rev"`
		Error string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "decode bulk_docs response")
	}

	out := make([]BulkResult, len(raw))
	for i, r := range raw {
		res := BulkResult{ID: r.ID, Rev: r.Rev}
		if r.Error != "" {
			kind := common.KindUnknown
			if r.Error == "conflict" {
				kind = common.KindConflict
			}
			res.Error = common.New(kind, "%s: %s", r.Error, r.Reason)
		}
		out[i] = res
	}
	return out, nil
}

func (s *HTTPStore) BulkFetch(ctx context.Context, ids []string) ([]FetchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	payload := struct {
		Docs []struct {
			ID string `json:"id"`
		} `json:"docs"`
	}{}
	for _, id := range ids {
		payload.Docs = append(payload.Docs, struct {
			ID string `json:"id"`
		}{ID: id})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "marshal bulk_get")
	}

	resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/_bulk_get", bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		Results []struct {
			ID   string `json:"id"`
			Docs []struct {
				OK    json.RawMessage `json:"ok"`
				Error string          `json:"error"`
			} `json:"docs"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "decode bulk_get response")
	}

	out := make([]FetchResult, 0, len(raw.Results))
	for _, r := range raw.Results {
		fr := FetchResult{ID: r.ID}
		if len(r.Docs) == 0 || r.Docs[0].OK == nil {
			fr.Missing = true
		} else {
			fr.Doc = r.Docs[0].OK
			fr.Rev = extractRev(r.Docs[0].OK)
		}
		out = append(out, fr)
	}
	return out, nil
}

func (s *HTTPStore) Attach(ctx context.Context, id, name string, data []byte, contentType string, expectedRev string) (string, error) {
	target := fmt.Sprintf("%s/%s", s.docURL(id), url.PathEscape(name))
	if expectedRev != "" {
		target += "?rev=" + url.QueryEscape(expectedRev)
	}
	resp, err := s.do(ctx, http.MethodPut, target, bytes.NewReader(data), map[string]string{"Content-Type": contentType})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", common.New(common.KindConflict, "conflict attaching %s to %s", name, id)
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}
	return extractPutRev(body), nil
}

func (s *HTTPStore) View(ctx context.Context, designDoc, view string, q ViewQuery) ([]Row, error) {
	u := fmt.Sprintf("%s/_design/%s/_view/%s", s.baseURL, designDoc, view)

	values := url.Values{}
	if q.StartKey != nil {
		values.Set("startkey", mustJSON(q.StartKey))
	}
	if q.EndKey != nil {
		values.Set("endkey", mustJSON(q.EndKey))
	}
	if q.Keys != nil {
		values.Set("keys", mustJSON(q.Keys))
	}
	if q.IncludeDocs {
		values.Set("include_docs", "true")
	}
	values.Set("reduce", strconv.FormatBool(q.Reduce))
	if q.Descending {
		values.Set("descending", "true")
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.GroupLevel > 0 {
		values.Set("group_level", strconv.Itoa(q.GroupLevel))
	} else if q.Reduce {
		values.Set("group", "true")
	}
	u += "?" + values.Encode()

	resp, err := s.do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		Rows []struct {
			Key   json.RawMessage `json:"key"`
			ID    string          `json:"id"`
			Value json.RawMessage `json:"value"`
			Doc   json.RawMessage `json:"doc"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, common.Wrap(common.KindViewReduceFailure, err, "decode view %s/%s response", designDoc, view)
	}

	out := make([]Row, 0, len(raw.Rows))
	for _, r := range raw.Rows {
		var key []any
		if len(r.Key) > 0 {
			if err := json.Unmarshal(r.Key, &key); err != nil {
				// reduced/scalar key (e.g. by_tag's tag string): wrap as single element
				var scalar any
				if jerr := json.Unmarshal(r.Key, &scalar); jerr == nil {
					key = []any{scalar}
				} else {
					return nil, common.Wrap(common.KindViewReduceFailure, err, "decode row key")
				}
			}
		}
		out = append(out, Row{Key: key, ID: r.ID, Value: r.Value, Doc: r.Doc})
	}
	return out, nil
}

func (s *HTTPStore) Destroy(ctx context.Context, docs []BulkDoc) error {
	tombstoned := make([]BulkDoc, len(docs))
	for i, d := range docs {
		tombstoned[i] = BulkDoc{ID: d.ID, Rev: d.Rev, Doc: map[string]any{"_id": d.ID, "_rev": d.Rev, "_deleted": true}}
	}
	results, err := s.BulkPut(ctx, tombstoned)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Error != nil {
			return r.Error
		}
	}
	return nil
}

func bulkDocBody(d BulkDoc) (json.RawMessage, error) {
	raw, err := json.Marshal(d.Doc)
	if err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "marshal bulk doc %s", d.ID)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "re-decode bulk doc %s", d.ID)
	}
	idb, _ := json.Marshal(d.ID)
	m["_id"] = idb
	if d.Rev != "" {
		revb, _ := json.Marshal(d.Rev)
		m["_rev"] = revb
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, common.Wrap(common.KindUnknown, err, "re-marshal bulk doc %s", d.ID)
	}
	return out, nil
}

// extractRev pulls the revision out of a full document body (_rev).
func extractRev(body json.RawMessage) string {
	var env struct {
		Rev string `json:"_rev"`
	}
	_ = json.Unmarshal(body, &env)
	return env.Rev
}

// extractPutRev pulls the revision out of a write response envelope
// ({"ok":true,"id":...,"rev":...}), as returned by PUT and attachment
// PUT, which is shaped differently from a fetched document body.
func extractPutRev(body json.RawMessage) string {
	var env struct {
		Rev string `json:"rev"`
	}
	_ = json.Unmarshal(body, &env)
	return env.Rev
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func readBody(resp *http.Response) (json.RawMessage, error) {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.Wrap(common.KindDBConnectionError, err, "read response body")
	}
	if resp.StatusCode >= 500 {
		return nil, common.New(common.KindDBConnectionError, "store returned %d: %s", resp.StatusCode, string(b))
	}
	return b, nil
}

// do issues one HTTP request with basic auth and the store's retry
// policy applied to connection-level failures only (not application
// conflicts, which callers handle via withCAS).
func (s *HTTPStore) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, common.Wrap(common.KindUnknown, err, "buffer request body")
		}
		bodyBytes = b
	}

	var resp *http.Response
	err := retry.IfNecessary(ctx, func() error {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if s.username != "" {
			req.SetBasicAuth(s.username, s.password)
		}
		r, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, s.retryOpts)
	if err != nil {
		return nil, common.Wrap(common.KindDBConnectionError, err, "%s %s", method, target)
	}
	return resp, nil
}
