package saved

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3 is a fake S3 subset (Head/Get/Put/Delete/ListObjectsV2) served
// over an http.RoundTripper, so the SDK runs without network access.
type mockS3 struct {
	mu    sync.Mutex
	state map[string][]byte
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && strings.Contains(req.URL.RawQuery, "list-type=2") {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.state {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-10-14T15:30:00Z</LastModified></Contents>", k, len(m.state[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, []byte(b.String()), "application/xml"), nil
	}

	switch req.Method {
	case http.MethodHead:
		if body, ok := m.state[key]; ok {
			resp := respond(http.StatusOK, nil, "application/json")
			resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
			return resp, nil
		}
		return respond(http.StatusNotFound, nil, ""), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		m.state[key] = body
		return respond(http.StatusOK, nil, ""), nil
	case http.MethodGet:
		if body, ok := m.state[key]; ok {
			return respond(http.StatusOK, body, "application/json"), nil
		}
		return respond(http.StatusNotFound, nil, ""), nil
	case http.MethodDelete:
		delete(m.state, key)
		return respond(http.StatusNoContent, nil, ""), nil
	}
	return respond(http.StatusNotImplemented, nil, ""), nil
}

func respond(status int, body []byte, contentType string) *http.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: h}
}

// decodeChunked unwraps a single-chunk aws-chunked payload:
// <hex>[;ext]\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	sizeHex, _, _ := strings.Cut(parts[0], ";")
	size, err := strconv.ParseInt(sizeHex, 16, 64)
	if err != nil || int64(len(parts[1])) != size || !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newMockS3Store(t *testing.T, prefix string) (*S3Store, *mockS3) {
	t.Helper()
	rt := &mockS3{state: map[string][]byte{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewS3StoreFromClient(client, "tql-bucket", prefix, newStepClock().Now), rt
}

func TestS3Store_Contract(t *testing.T) {
	s, _ := newMockS3Store(t, "tql/saved/")
	testStoreContract(t, s)
}

func TestS3Store_Layout(t *testing.T) {
	s, rt := newMockS3Store(t, "tql/saved/")
	ctx := context.Background()

	id, err := s.Save(ctx, Query{Name: "n", TQL: "SOMAR valor DE vendas"})
	require.NoError(t, err)

	rt.mu.Lock()
	body, ok := rt.state["tql/saved/"+id+".json"]
	rt.state["tql/saved/README.txt"] = []byte("not a query")
	rt.state["outro/prefixo/x.json"] = []byte("{}")
	rt.mu.Unlock()

	require.True(t, ok, "document stored under prefix/<id>.json")
	assert.Contains(t, string(body), `"tql":"SOMAR valor DE vendas"`)
	assert.Contains(t, string(body), `"queryType":"simple"`)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "non-json keys and other prefixes are ignored")
	assert.Equal(t, id, list[0].ID)
}

func TestS3Store_CorruptDocument(t *testing.T) {
	s, rt := newMockS3Store(t, "p/")
	rt.state["p/bad.json"] = []byte("{not json")

	_, err := s.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)
}
