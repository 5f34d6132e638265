package erg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPageSize = 100

	searchUnspentBoxes = "/api/v1/boxes/unspent/search"
	getBlock           = "/api/v1/blocks/"
	getToken           = "/api/v1/tokens/"

	// explorer timestamps below this are in seconds
	secondsThreshold = 1e11
)

var (
	// ErrFetchFailed is returned when the indexer cannot be reached at all.
	ErrFetchFailed = errors.New("fetch failed")
)

// Pager walks the pages of a box search. It is finite and not restartable,
// a new search starts again from offset 0.
type Pager interface {
	Next(ctx context.Context) bool
	Batch() []Box
	Err() error
}

type Explorer struct {
	client *retryablehttp.Client
	url    *url.URL

	blocks singleflight.Group
	tokens singleflight.Group
	logger *zap.Logger
}

func NewExplorer(client *retryablehttp.Client, uri string) (*Explorer, error) {
	u, err := url.Parse(strings.TrimSuffix(uri, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid explorer uri %q - %s", uri, err.Error())
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("explorer uri %q needs a scheme and host", uri)
	}

	return &Explorer{
		client: client,
		url:    u,
		logger: zap.L().With(zap.String("component", "explorer")),
	}, nil
}

// Search returns a Pager over every unspent box matching query, pageSize
// boxes at a time.
func (e *Explorer) Search(query SearchQuery, pageSize int) Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if query.Assets == nil {
		query.Assets = []string{}
	}

	return &BoxPager{
		explorer: e,
		query:    query,
		limit:    pageSize,
	}
}

// SearchAll drains a search into a single slice.
func (e *Explorer) SearchAll(ctx context.Context, query SearchQuery, pageSize int) ([]Box, error) {
	var boxes []Box

	pager := e.Search(query, pageSize)
	for pager.Next(ctx) {
		boxes = append(boxes, pager.Batch()...)
	}

	return boxes, pager.Err()
}

// searchPage requests one page. A non nil error means no usable response was
// received, otherwise status carries the http status code.
func (e *Explorer) searchPage(ctx context.Context, query SearchQuery, offset, limit int) ([]Box, int, error) {
	var page BoxItems

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, 0, fmt.Errorf("error marshalling box search body - %s", err.Error())
	}

	endpoint := fmt.Sprintf("%s%s?offset=%d&limit=%d", e.url.String(), searchUnspentBoxes, offset, limit)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build box search request - %s", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("forum-func", "SearchBoxes")

	start := time.Now()
	resp, err := e.client.Do(req)
	requestDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, 0, fmt.Errorf("error calling ergo api explorer - %s", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error reading box search body - %s", err.Error())
	}

	err = json.Unmarshal(body, &page)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error unmarshalling box search body - %s", err.Error())
	}

	return page.Items, resp.StatusCode, nil
}

// BoxPager pages forward until a page comes back empty or with a non success
// status. Only a failure on the very first page is reported through Err,
// later failures truncate the result.
type BoxPager struct {
	explorer *Explorer
	query    SearchQuery
	limit    int
	offset   int
	pages    int
	batch    []Box
	err      error
	done     bool
}

func (p *BoxPager) Next(ctx context.Context) bool {
	if p.done {
		return false
	}

	items, status, err := p.explorer.searchPage(ctx, p.query, p.offset, p.limit)
	p.pages++

	switch {
	case err != nil:
		p.done = true
		p.batch = nil
		searchPagesTotal.WithLabelValues("failed").Inc()
		if p.pages == 1 {
			p.err = fmt.Errorf("%w - %s", ErrFetchFailed, err.Error())
			return false
		}
		p.explorer.logger.Warn("box search truncated",
			zap.Error(err),
			zap.Int("offset", p.offset),
			zap.Int("pages", p.pages),
		)
		return false
	case status < 200 || status > 299:
		p.done = true
		p.batch = nil
		searchPagesTotal.WithLabelValues("status").Inc()
		p.explorer.logger.Warn("box search stopped on non success status",
			zap.Int("status", status),
			zap.Int("offset", p.offset),
		)
		return false
	case len(items) == 0:
		p.done = true
		p.batch = nil
		searchPagesTotal.WithLabelValues("empty").Inc()
		return false
	}

	searchPagesTotal.WithLabelValues("items").Inc()
	p.batch = items
	p.offset += p.limit

	return true
}

func (p *BoxPager) Batch() []Box {
	return p.batch
}

func (p *BoxPager) Err() error {
	return p.err
}

// Pages returns how many page requests were issued so far.
func (p *BoxPager) Pages() int {
	return p.pages
}

func (e *Explorer) getJSON(ctx context.Context, endpoint, fn string, out interface{}) (int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build %s request - %s", fn, err.Error())
	}
	req.Header.Set("forum-func", fn)

	start := time.Now()
	resp, err := e.client.Do(req)
	requestDuration.WithLabelValues(fn).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("error calling ergo api explorer - %s", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("response status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("error reading %s body - %s", fn, err.Error())
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("error unmarshalling %s body - %s", fn, err.Error())
	}

	return resp.StatusCode, nil
}

// BlockTimestamp returns the timestamp of a block in milliseconds, or 0 when
// it cannot be resolved.
func (e *Explorer) BlockTimestamp(ctx context.Context, blockID string) int64 {
	if blockID == "" {
		return 0
	}

	v, _, _ := e.blocks.Do(blockID, func() (interface{}, error) {
		var block BlockSummary

		_, err := e.getJSON(ctx, e.url.String()+getBlock+url.PathEscape(blockID), "GetBlock", &block)
		if err != nil {
			e.logger.Warn("failed to get block timestamp", zap.Error(err), zap.String("block_id", blockID))
			return int64(0), nil
		}

		return NormalizeTimestamp(block.Block.Header.Timestamp), nil
	})

	return v.(int64)
}

// NormalizeTimestamp converts a raw explorer timestamp to milliseconds.
func NormalizeTimestamp(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}

	ts, err := strconv.ParseFloat(s, 64)
	if err != nil || ts <= 0 {
		return 0
	}
	if ts < secondsThreshold {
		ts *= 1000
	}

	return int64(ts)
}

// TokenInfo returns the metadata of a token, including its emission amount.
func (e *Explorer) TokenInfo(ctx context.Context, tokenID string) (TokenInfo, error) {
	v, err, _ := e.tokens.Do(tokenID, func() (interface{}, error) {
		var token TokenInfo

		_, err := e.getJSON(ctx, e.url.String()+getToken+url.PathEscape(tokenID), "GetToken", &token)
		if err != nil {
			return token, fmt.Errorf("failed to get token %s - %w", tokenID, err)
		}

		return token, nil
	})
	if err != nil {
		return TokenInfo{}, err
	}

	return v.(TokenInfo), nil
}
