package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"docchat/internal/apperr"
	"docchat/internal/model"
	"docchat/internal/pkg/textnorm"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "docchat/1.0"
)

type URLExtractor struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	pdf       *PDFExtractor
}

func NewURLExtractor(opts Options, pdf *PDFExtractor) *URLExtractor {
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := opts.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if pdf == nil {
		pdf = NewPDFExtractor(opts.MaxPDFBytes)
	}
	return &URLExtractor{
		client:    client,
		timeout:   timeout,
		maxBytes:  maxBytes,
		userAgent: userAgent,
		pdf:       pdf,
	}
}

func (e *URLExtractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat, fmt.Errorf("not an http(s) url: %q", rawURL))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,application/pdf;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Extraction(apperr.ErrNetwork, fmt.Errorf("fetch %s: %w", u.Redacted(), err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Extraction(apperr.ErrNetwork, fmt.Errorf("fetch %s: status %d", u.Redacted(), resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, apperr.Extraction(apperr.ErrNetwork, fmt.Errorf("read %s: %w", u.Redacted(), err))
	}
	if int64(len(body)) > e.maxBytes {
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat, fmt.Errorf("body larger than %d bytes", e.maxBytes))
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		contentType = http.DetectContentType(body)
		mediaType, _, _ = mime.ParseMediaType(contentType)
	}

	var title, text string
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		utf8Body, err := charset.NewReader(bytes.NewReader(body), contentType)
		if err != nil {
			return nil, apperr.Extraction(apperr.ErrParse, err)
		}
		title, text, err = htmlToText(utf8Body)
		if err != nil {
			return nil, apperr.Extraction(apperr.ErrParse, err)
		}
	case "text/plain", "text/markdown":
		text = string(bytes.ToValidUTF8(body, nil))
	case "application/pdf":
		res, err := e.pdf.Extract(PDFSource{Name: pathBase(u), Data: body})
		if err != nil {
			return nil, err
		}
		res.SourceKind = model.SourceURL
		res.SourceRef = u.String()
		return res, nil
	default:
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat, fmt.Errorf("content type %q", mediaType))
	}

	text = textnorm.Normalize(text)
	if text == "" {
		return nil, apperr.Extraction(apperr.ErrEmptyContent, fmt.Errorf("%s has no readable text", u.Redacted()))
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = u.Host + u.EscapedPath()
	}
	return &Result{
		Text:       text,
		Title:      title,
		SourceKind: model.SourceURL,
		SourceRef:  u.String(),
	}, nil
}

func pathBase(u *url.URL) string {
	p := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if p == "" {
		return u.Host
	}
	return p
}
