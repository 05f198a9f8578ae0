package extract

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/markstash/markstash/internal/bookmark"
	mserrors "github.com/markstash/markstash/internal/errors"
)

// PDFSource extracts plain text from linked PDF documents.
type PDFSource struct {
	client *http.Client
}

var _ ContentSource = (*PDFSource)(nil)

// NewPDFSource creates the PDF content source.
func NewPDFSource(client *http.Client) *PDFSource {
	return &PDFSource{client: client}
}

// Name returns the platform tag.
func (s *PDFSource) Name() string { return bookmark.PlatformPDF }

// Matches accepts URLs whose path ends in .pdf. PDFs served without the
// extension fall through to the webpage source, which rejects them by
// content type.
func (s *PDFSource) Matches(u *url.URL) bool {
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}

// Fetch downloads the document and extracts its text page by page.
func (s *PDFSource) Fetch(ctx context.Context, rawURL string) (*bookmark.ContentDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, mserrors.ValidationError("invalid PDF URL: "+rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyFetchError(rawURL, resp.StatusCode, nil); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, mserrors.UnreachableError("failed to download PDF from "+rawURL, err)
	}

	text, err := pdfToText(data)
	if err != nil {
		return nil, mserrors.UnsupportedError("failed to parse PDF at "+rawURL, err)
	}

	title := strings.TrimSuffix(path.Base(rawURL), path.Ext(rawURL))
	if u, err := url.Parse(rawURL); err == nil {
		title = strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	}

	return &bookmark.ContentDocument{
		Title: title,
		Text:  text,
	}, nil
}

// pdfToText extracts plain text from an in-memory PDF.
func pdfToText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unparseable pages, keep the rest
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
