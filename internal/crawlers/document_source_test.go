package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestDecompressResponse(t *testing.T) {
	plain := []byte("<html><body>hello</body></html>")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(plain)
	gw.Close()

	var fl bytes.Buffer
	fw, _ := flate.NewWriter(&fl, flate.DefaultCompression)
	fw.Write(plain)
	fw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write(plain)
	bw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
		wantErr  bool
	}{
		{"gzip", "gzip", gz.Bytes(), false},
		{"已解压的gzip", "gzip", plain, false},
		{"deflate", "deflate", fl.Bytes(), false},
		{"brotli", "br", br.Bytes(), false},
		{"大小写与空白", " BR ", br.Bytes(), false},
		{"identity", "identity", plain, false},
		{"未知编码", "zstd", plain, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressResponse(tt.encoding, tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decompressResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, plain) {
				t.Errorf("decompressResponse() = %q", got)
			}
		})
	}
}

func TestStaticSource_Fetch(t *testing.T) {
	var gotHeader, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test-Token")
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><h1>Static</h1></body></html>`))
	}))
	defer server.Close()

	source := NewStaticSource("discovercrawl-test", map[string]string{"X-Test-Token": "abc"})

	html, err := source.Fetch(context.Background(), server.URL+"/discover/a/b", 5*time.Second)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !bytes.Contains([]byte(html), []byte("<h1>Static</h1>")) {
		t.Errorf("Fetch() = %q", html)
	}
	if gotHeader != "abc" {
		t.Errorf("附加请求头未发送, got %q", gotHeader)
	}
	if gotUA != "discovercrawl-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}

	if _, err := source.Fetch(context.Background(), server.URL+"/missing", 5*time.Second); err == nil {
		t.Error("404 应返回错误")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := source.Fetch(ctx, server.URL+"/discover/a/b", time.Second); err == nil {
		t.Error("已取消的ctx应返回错误")
	}
}
