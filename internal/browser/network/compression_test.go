// browser/network/compression_test.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body><h2 class="site-name">Commerce Kickstart</h2></body></html>`

func encode(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	default:
		t.Fatalf("unknown encoding %s", encoding)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestCompressionMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		header   string
	}{
		{"brotli", "br", "br"},
		{"gzip", "gzip", "gzip"},
		{"zlib deflate", "deflate", "deflate"},
		{"raw deflate", "raw-deflate", "deflate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := encode(t, tt.encoding, []byte(page))
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")
				w.Header().Set("Content-Encoding", tt.header)
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write(body)
			}))
			defer server.Close()

			client := &http.Client{Transport: NewCompressionMiddleware(nil)}
			resp, err := client.Get(server.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, page, string(got))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.True(t, resp.Uncompressed)
		})
	}
}

func TestDecompressResponseStacked(t *testing.T) {
	// Applied gzip first, then brotli.
	data := encode(t, "br", encode(t, "gzip", []byte(page)))
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip, br"}},
		Body:   io.NopCloser(bytes.NewReader(data)),
	}

	require.NoError(t, DecompressResponse(resp))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, page, string(got))
	assert.NoError(t, resp.Body.Close())
}

func TestDecompressResponseErrors(t *testing.T) {
	t.Run("unsupported encoding", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"zstd"}},
			Body:   io.NopCloser(bytes.NewReader([]byte("x"))),
		}
		assert.ErrorContains(t, DecompressResponse(resp), "unsupported Content-Encoding")
	})

	t.Run("corrupt gzip", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"gzip"}},
			Body:   io.NopCloser(bytes.NewReader([]byte("not gzip"))),
		}
		assert.ErrorContains(t, DecompressResponse(resp), "gzip initialization error")
	})

	t.Run("no encoding is untouched", func(t *testing.T) {
		body := io.NopCloser(bytes.NewReader([]byte(page)))
		resp := &http.Response{Header: http.Header{}, Body: body}
		require.NoError(t, DecompressResponse(resp))
		assert.Equal(t, body, resp.Body)
	})
}
