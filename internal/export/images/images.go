// Package images resolves every remote image in a document before it is
// rendered. Sources are fetched concurrently and embedded as data URIs; an
// image that cannot be fetched keeps its original source so it can never
// block the export.
package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/doclast/docfill/internal/sanitize"
)

// DefaultMaxBytes caps a single image
const DefaultMaxBytes = 10 << 20

// Fetcher loads one image
type Fetcher interface {
	Fetch(ctx context.Context, src string) (data []byte, contentType string, err error)
}

// HTTPFetcher fetches images over HTTP
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher with a request timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: DefaultMaxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("image exceeds %d bytes", limit)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("not an image: %s", contentType)
	}
	return data, contentType, nil
}

// Report summarizes one inlining pass
type Report struct {
	Total   int
	Inlined int
	Failed  []string
}

// Inliner embeds remote images
type Inliner struct {
	fetcher Fetcher
	limit   int
	logger  *zap.Logger
}

// NewInliner creates an inliner fetching at most concurrency images at once
func NewInliner(fetcher Fetcher, concurrency int, logger *zap.Logger) *Inliner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inliner{fetcher: fetcher, limit: concurrency, logger: logger.Named("images")}
}

// Inline returns fragment with every remote image embedded. It returns only
// after every image has either loaded or failed.
func (in *Inliner) Inline(ctx context.Context, fragment string) (string, Report, error) {
	nodes, err := sanitize.ParseFragment(fragment)
	if err != nil {
		return "", Report{}, err
	}

	var targets []*html.Node
	for _, n := range nodes {
		collectImages(n, &targets)
	}
	report := Report{Total: len(targets)}
	if len(targets) == 0 {
		return fragment, report, nil
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(in.limit)
	for _, img := range targets {
		src := imageSource(img)
		eg.Go(func() error {
			data, contentType, err := in.fetcher.Fetch(egCtx, src)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				in.logger.Warn("image could not be inlined", zap.String("src", src), zap.Error(err))
				report.Failed = append(report.Failed, src)
				return nil
			}
			setAttr(img, "src", "data:"+contentType+";base64,"+base64.StdEncoding.EncodeToString(data))
			report.Inlined++
			return nil
		})
	}
	// Fetch errors are recorded, never returned.
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return "", report, err
	}

	out, err := sanitize.RenderNodes(nodes)
	if err != nil {
		return "", report, err
	}
	return out, report, nil
}

func collectImages(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		src := imageSource(n)
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			*out = append(*out, n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectImages(c, out)
	}
}

func imageSource(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "src" {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
