package ves

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/sig-0/vedollar/storage/types"
)

// DefaultBCVStatsURL is the index of the BCV reference rate workbooks
const DefaultBCVStatsURL = "https://www.bcv.org.ve/estadisticas/tipo-cambio-de-referencia-smc"

// maxIndexPages bounds the pagination walk
const maxIndexPages = 1000

// Fixed workbook sheet layout (0-indexed)
const (
	dateRow = 4
	dateCol = 3
	rateRow = 14
)

var (
	errInvalidStatusCode = errors.New("invalid status code received")
	errMissingDate       = errors.New("missing date cell")
	errMissingRate       = errors.New("missing rate cell")
)

// BCVProvider is the BCV reference rate workbooks provider
type BCVProvider struct {
	client *http.Client
	cache  *Cache
	opener WorkbookOpener
	logger *slog.Logger

	url      string
	interval time.Duration
}

// BCVOption is a functional option for the BCV provider
type BCVOption func(p *BCVProvider)

// WithBCVLogger specifies the logger for the provider
func WithBCVLogger(l *slog.Logger) BCVOption {
	return func(p *BCVProvider) {
		p.logger = l
	}
}

// WithBCVOpener specifies the workbook opener. Defaults to the legacy xls reader
func WithBCVOpener(o WorkbookOpener) BCVOption {
	return func(p *BCVProvider) {
		p.opener = o
	}
}

// WithBCVInterval specifies the ingestion interval
func WithBCVInterval(interval time.Duration) BCVOption {
	return func(p *BCVProvider) {
		p.interval = interval
	}
}

// NewBCVProvider creates a new instance of the BCV workbooks provider.
// The timeout applies to every single request
func NewBCVProvider(
	url string,
	cache *Cache,
	timeout time.Duration,
	opts ...BCVOption,
) *BCVProvider {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // BCV serves an incomplete chain
	}

	p := &BCVProvider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		cache:    cache,
		opener:   XLSOpener(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		url:      url,
		interval: time.Hour * 24, // the workbooks are updated daily
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *BCVProvider) Name() string {
	return "BCV"
}

func (p *BCVProvider) Source() types.Source {
	return types.SourceBCV
}

func (p *BCVProvider) Interval() time.Duration {
	return p.interval
}

// Fetch refreshes the workbook cache and extracts a rate from every cached sheet.
// An unreachable index degrades to the already cached workbooks
func (p *BCVProvider) Fetch(ctx context.Context, _ *types.Cursor) (*types.Batch, error) {
	urls, err := p.Discover(ctx)
	if err != nil {
		p.logger.Warn(
			"unable to fetch stats index, data might be outdated",
			"url", p.url,
			"err", err,
		)
	} else {
		p.Download(ctx, urls)
	}

	files, err := p.cache.Files()
	if err != nil {
		return nil, fmt.Errorf("unable to list cached workbooks: %w", err)
	}

	batch := &types.Batch{
		Source:       types.SourceBCV,
		Observations: make([]*types.Observation, 0, len(files)*64),
	}

	for _, file := range files {
		sheets, err := p.opener.Open(file)
		if err != nil {
			p.logger.Warn(
				"unable to open workbook",
				"file", file,
				"err", err,
			)

			batch.Skipped++

			continue
		}

		for i, sheet := range sheets {
			o, err := extractObservation(sheet)
			if err != nil {
				p.logger.Warn(
					"unable to parse sheet",
					"file", file,
					"sheet", i,
					"err", err,
				)

				batch.Skipped++

				continue
			}

			batch.Observations = append(batch.Observations, o)
		}
	}

	return batch, nil
}

// Discover walks the index pagination chain, and collects the workbook
// download URLs, newest first
func (p *BCVProvider) Discover(ctx context.Context) ([]string, error) {
	next, err := url.Parse(p.url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse index URL: %w", err)
	}

	var (
		links   = make([]string, 0)
		visited = make(map[string]struct{})
	)

	for range maxIndexPages {
		current := next.String()
		if _, seen := visited[current]; seen {
			break // cyclic pagination
		}

		visited[current] = struct{}{}

		doc, err := p.fetchDocument(ctx, current)
		if err != nil {
			return nil, err
		}

		main := doc.Find("#block-system-main")

		main.Find(".file-icon").Each(func(_ int, icon *goquery.Selection) {
			href, ok := downloadHref(icon)
			if !ok {
				return
			}

			link, err := next.Parse(href)
			if err != nil {
				return
			}

			links = append(links, link.String())
		})

		// A missing pagination block (or next link) ends the chain
		nextHref, ok := main.Find(".pagination .next a").First().Attr("href")
		if !ok || strings.TrimSpace(nextHref) == "" {
			break
		}

		if next, err = next.Parse(strings.TrimSpace(nextHref)); err != nil {
			break
		}
	}

	return links, nil
}

// Download populates the cache with the given workbooks. The newest (first)
// workbook is always downloaded again, to pick up same-day updates; the rest
// only if missing. Returns the number of downloaded workbooks
func (p *BCVProvider) Download(ctx context.Context, urls []string) int {
	var downloaded int

	for idx, u := range urls {
		name, err := cacheName(u)
		if err != nil {
			p.logger.Warn(
				"invalid workbook URL",
				"url", u,
				"err", err,
			)

			continue
		}

		if idx > 0 && p.cache.Has(name) {
			continue
		}

		p.logger.Info(
			"fetching workbook",
			"file", name,
			"url", u,
		)

		if err := p.download(ctx, u, name); err != nil {
			p.logger.Error(
				"unable to fetch workbook",
				"url", u,
				"err", err,
			)

			continue
		}

		downloaded++
	}

	return downloaded
}

func (p *BCVProvider) download(ctx context.Context, u, name string) error {
	resp, err := p.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return p.cache.Write(name, resp.Body)
}

func (p *BCVProvider) fetchDocument(ctx context.Context, u string) (*goquery.Document, error) {
	resp, err := p.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to construct query doc: %w", err)
	}

	return doc, nil
}

// get executes a GET request, and validates the status code.
// The caller closes the response body
func (p *BCVProvider) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("unable to create new GET request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()

		return nil, fmt.Errorf("%w: %d", errInvalidStatusCode, resp.StatusCode)
	}

	return resp, nil
}

// downloadHref finds the link anchored on the file icon
func downloadHref(icon *goquery.Selection) (string, bool) {
	parent := icon.Parent()

	href, ok := parent.Attr("href")
	if !ok {
		href, ok = parent.Find("a[href]").First().Attr("href")
	}

	href = strings.TrimSpace(href)

	return href, ok && href != ""
}

// cacheName derives the cache file name from the URL's last path segment
func cacheName(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", err
	}

	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no file name in %q", u)
	}

	return name, nil
}

// extractObservation reads the date and rate cells of a single sheet
func extractObservation(sheet Sheet) (*types.Observation, error) {
	// Label followed by the date, ex. "Fecha Valor: 13/01/2026"
	fields := strings.Fields(sheet.Cell(dateRow, dateCol))
	if len(fields) == 0 {
		return nil, errMissingDate
	}

	day, err := time.ParseInLocation("2/1/2006", fields[len(fields)-1], Location)
	if err != nil {
		return nil, fmt.Errorf("unable to parse sheet date: %w", err)
	}

	rawCell := strings.TrimSpace(sheet.LastCell(rateRow))
	if rawCell == "" {
		return nil, errMissingRate
	}

	value, err := parseBCVNumber(rawCell)
	if err != nil {
		return nil, err
	}

	o := &types.Observation{
		Time:   day,
		Source: types.SourceBCV,
		Rate:   Normalize(toFixedPoint(value), day),
	}

	Correct(o)

	if o.Rate <= 0 {
		return nil, fmt.Errorf("%w: non-positive value %d", errInvalidRate, o.Rate)
	}

	return o, nil
}

// parseBCVNumber parses a workbook rate cell. Numeric cells are plain
// decimals ("36.1581"), text cells use a decimal comma ("1.234,56")
func parseBCVNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errInvalidRate
	}

	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse rate %q: %w", s, err)
	}

	return d, nil
}
