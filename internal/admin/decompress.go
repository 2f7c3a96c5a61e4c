package admin

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// maxRequestBody caps both the raw and the decompressed request body.
const maxRequestBody = 4 << 20

var errBodyTooLarge = errors.New("request body too large")

// readRequestBody reads r.Body honoring Content-Encoding (gzip, br, deflate).
func readRequestBody(r *http.Request, limit int) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > limit {
		return nil, errBodyTooLarge
	}
	return decompressBytes(raw, r.Header.Get("Content-Encoding"), limit)
}

func decompressBytes(raw []byte, encoding string, limit int) ([]byte, error) {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	if enc == "" || enc == "identity" {
		return raw, nil
	}

	var r io.Reader
	switch enc {
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	case "br", "brotli":
		r = brotli.NewReader(bytes.NewReader(raw))
	case "deflate":
		// HTTP 的 deflate 理论上是 zlib 封装，但不少客户端直接发送裸 deflate：两种都兼容。
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			r = fr
		}
	default:
		return nil, fmt.Errorf("unsupported content-encoding: %s", encoding)
	}

	limited := io.LimitReader(r, int64(limit)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, errBodyTooLarge
	}
	return out, nil
}
