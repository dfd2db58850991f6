package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"biblio/internal"
	"biblio/internal/config"
	"biblio/internal/util"
)

var ErrInvalidISBN = errors.New("invalid isbn")

// Lookup resolves an ISBN to bibliographic metadata. A nil result with a nil
// error means the ISBN is unknown.
type Lookup interface {
	LookupISBN(ctx context.Context, isbn string) (*internal.BookMetadata, error)
}

// Client talks to the Open Library books API.
type Client struct {
	cfg         config.Config
	httpClient  *http.Client
	limiter     *rate.Limiter
	backoffBase time.Duration
}

var _ Lookup = (*Client)(nil)

type bookData struct {
	Title       string       `json:"title"`
	Subtitle    string       `json:"subtitle"`
	Authors     []namedEntry `json:"authors"`
	Publishers  []namedEntry `json:"publishers"`
	PublishDate string       `json:"publish_date"`
}

type namedEntry struct {
	Name string `json:"name"`
}

func NewClient(cfg config.Config) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if addr := strings.TrimSpace(cfg.LookupProxy); addr != "" {
		addr = strings.TrimPrefix(addr, "socks5://")
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("lookup proxy %s: %w", addr, err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, address string) (net.Conn, error) {
				return dialer.Dial(network, address)
			}
		}
		transport.Proxy = nil
	}

	rps := cfg.LookupRPS
	if rps <= 0 {
		rps = 1
	}
	timeout := time.Duration(cfg.LookupTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: timeout, Transport: transport},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		backoffBase: 250 * time.Millisecond,
	}, nil
}

func (c *Client) LookupISBN(ctx context.Context, raw string) (*internal.BookMetadata, error) {
	isbn := util.NormalizeISBN(raw)
	if !util.ValidISBN(isbn) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidISBN, raw)
	}

	key := "ISBN:" + isbn
	body, err := c.fetchJSON(ctx, "api/books", map[string]string{
		"bibkeys": key,
		"jscmd":   "data",
		"format":  "json",
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]bookData
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode open library response: %w", err)
	}
	data, ok := payload[key]
	if !ok {
		return nil, nil
	}
	return toMetadata(isbn, data), nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	baseURL := strings.TrimRight(c.cfg.LookupBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	attempts := c.cfg.LookupMaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.LookupUserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.LookupUserAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < attempts {
				lastErr = fmt.Errorf("open library status %d", resp.StatusCode)
				if err := c.sleep(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("open library error: status=%d body=%s", resp.StatusCode, string(body))
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("open library request failed")
	}
	return nil, lastErr
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	backoff := c.backoffBase*time.Duration(1<<(attempt-1)) + time.Duration(rand.Int63n(int64(c.backoffBase/2)+1))
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

var yearPattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

func toMetadata(isbn string, data bookData) *internal.BookMetadata {
	md := &internal.BookMetadata{ISBN: isbn, Title: util.Clean(data.Title)}
	if sub := util.Clean(data.Subtitle); sub != "" && md.Title != "" {
		md.Title += " : " + sub
	}
	for _, a := range data.Authors {
		if name := util.Clean(a.Name); name != "" {
			md.Authors = append(md.Authors, name)
		}
	}
	if len(data.Publishers) > 0 {
		md.Publisher = util.Clean(data.Publishers[0].Name)
	}
	if m := yearPattern.FindString(data.PublishDate); m != "" {
		if year, err := strconv.Atoi(m); err == nil {
			md.Year = util.IntPtr(year)
		}
	}
	return md
}
