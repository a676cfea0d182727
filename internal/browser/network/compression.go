// browser/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers. Every pooled reader is Reset onto the new
// source before use.
var (
	gzipReaderPool = sync.Pool{
		// A zero gzip.Reader is only usable after Reset.
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
	// Pooled readers are reset onto this before going back, so they drop
	// their reference to the previous body. gzip.Reset(nil) can panic.
	emptyReader = strings.NewReader("")
)

// CompressionMiddleware advertises br, gzip and deflate support and decodes
// response bodies transparently. Drupal sites behind a CDN commonly answer
// with brotli, which net/http cannot decode by itself.
type CompressionMiddleware struct {
	// Transport receives the requests after Accept-Encoding is set.
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, or http.DefaultTransport when nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper. A caller supplied Accept-Encoding
// is left alone; the body is still decoded if the server compressed it.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecompressResponse(resp); err != nil {
		// The body may be partially consumed; it cannot be handed out.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// decodedBody closes both the decoder and the wire body, and hands pooled
// decoders back exactly once.
type decodedBody struct {
	io.Reader
	closer  io.Closer
	wire    io.ReadCloser
	release func()
}

func (b *decodedBody) Close() error {
	// Return the pooled reader first; a second Close must not put it back twice.
	if b.release != nil {
		b.release()
		b.release = nil
	}
	// brotli.Reader has no Close, so closer is nil for it.
	var err1 error
	if b.closer != nil {
		err1 = b.closer.Close()
	}
	return errors.Join(err1, b.wire.Close())
}

// DecompressResponse replaces resp.Body with a decoding reader according to
// Content-Encoding. Stacked encodings are undone last-applied first. On
// error the body may be partially consumed and must be discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := contentEncodings(resp.Header)
	if len(encodings) == 0 {
		return nil
	}

	// "Content-Encoding: deflate, gzip" means gzip was applied last.
	for i := len(encodings) - 1; i >= 0; i-- {
		body := &decodedBody{wire: resp.Body}

		switch encodings[i] {
		case "gzip", "x-gzip":
			zr := gzipReaderPool.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaderPool.Put(zr)
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			body.Reader, body.closer = zr, zr
			body.release = func() {
				_ = zr.Reset(emptyReader)
				gzipReaderPool.Put(zr)
			}
		case "br":
			br := brotliReaderPool.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaderPool.Put(br)
				return fmt.Errorf("brotli initialization error: %w", err)
			}
			body.Reader = br
			body.release = func() {
				_ = br.Reset(emptyReader)
				brotliReaderPool.Put(br)
			}
		case "deflate":
			rc, err := newDeflateReader(resp.Body)
			if err != nil {
				return fmt.Errorf("deflate initialization error: %w", err)
			}
			body.Reader, body.closer = rc, rc
		case "identity":
			continue
		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", encodings[i])
		}
		resp.Body = body
	}

	// The headers now describe the decoded body, as net/http does for the
	// gzip it decodes itself.
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// contentEncodings lists the codings of h in the order they were applied,
// lower-cased. Repeated headers and comma lists are both accepted.
func contentEncodings(h http.Header) []string {
	var out []string
	for _, v := range h.Values("Content-Encoding") {
		for _, part := range strings.Split(v, ",") {
			if enc := strings.ToLower(strings.TrimSpace(part)); enc != "" {
				out = append(out, enc)
			}
		}
	}
	return out
}

// newDeflateReader accepts both zlib wrapped (RFC 1950) and raw (RFC 1951)
// deflate, since servers disagree on what "deflate" means. A zlib stream
// starts with a CMF byte whose low nibble is 8 and a header checksum that is
// a multiple of 31.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(header) == 2 && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}
