package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/triptide/collector/internal/geo"
)

const (
	defaultURL       = "https://overpass-api.de/api/interpreter"
	defaultUserAgent = "triptide-collector/1.0 (ops@triptide.io)"

	httpTimeout = 30 * time.Second

	// fair-use delay honored after every request, success or not
	defaultRequestDelay = 2 * time.Second

	defaultInitialBackoff = 5 * time.Second
	defaultMaxAttempts    = 5
)

// Element is a single tagged geographic feature from an Overpass response.
// Nodes carry Lat/Lon directly; ways and relations carry a Center.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat,omitempty"`
	Lon    float64           `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is a way/relation centroid as produced by "out center".
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Position returns the element's coordinates, preferring the node position
// and falling back to the way/relation center. ok is false when neither is
// usable.
func (e Element) Position() (lat, lon float64, ok bool) {
	if geo.ValidCoordinates(e.Lat, e.Lon) {
		return e.Lat, e.Lon, true
	}
	if e.Center != nil && geo.ValidCoordinates(e.Center.Lat, e.Center.Lon) {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// OSMID returns the stable "<type>/<id>" identity used for deduplication.
func (e Element) OSMID() string {
	return fmt.Sprintf("%s/%d", e.Type, e.ID)
}

// TileResponse is the decoded body of one tile query.
type TileResponse struct {
	Elements []Element `json:"elements"`
}

// Client issues Overpass QL queries with bounded retry and a fixed
// inter-request delay.
type Client struct {
	baseURL   string
	userAgent string
	hc        *http.Client
	log       *slog.Logger

	requestDelay   time.Duration
	initialBackoff time.Duration
	maxAttempts    int
	sleep          func(time.Duration)
}

// NewClient constructs a Client against the public Overpass endpoint.
func NewClient(log *slog.Logger) *Client {
	return &Client{
		baseURL:        defaultURL,
		userAgent:      defaultUserAgent,
		hc:             &http.Client{Timeout: httpTimeout},
		log:            log,
		requestDelay:   defaultRequestDelay,
		initialBackoff: defaultInitialBackoff,
		maxAttempts:    defaultMaxAttempts,
		sleep:          time.Sleep,
	}
}

// SetBaseURL points the client at an alternate Overpass mirror. An empty
// URL keeps the current endpoint.
func (c *Client) SetBaseURL(baseURL string) {
	if baseURL != "" {
		c.baseURL = baseURL
	}
}

// NewClientWithURL constructs a Client against a custom endpoint with all
// delays collapsed (used in tests).
func NewClientWithURL(baseURL string, log *slog.Logger) *Client {
	c := NewClient(log)
	c.baseURL = baseURL
	c.requestDelay = 0
	c.initialBackoff = 0
	return c
}

// BuildQuery renders the Overpass QL query for one tile: tourism, food
// amenities, marketplaces, beaches, parks and historic features, nodes and
// ways alike.
func BuildQuery(box geo.BoundingBox) string {
	bbox := box.OverpassBBox()

	selectors := []string{
		`node["tourism"]`, `way["tourism"]`,
		`node["amenity"="restaurant"]`, `way["amenity"="restaurant"]`,
		`node["amenity"="cafe"]`, `way["amenity"="cafe"]`,
		`node["amenity"="marketplace"]`, `way["amenity"="marketplace"]`,
		`node["natural"="beach"]`, `way["natural"="beach"]`,
		`node["leisure"="park"]`, `way["leisure"="park"]`,
		`node["historic"]`, `way["historic"]`,
	}

	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	for _, sel := range selectors {
		fmt.Fprintf(&b, "  %s(%s);\n", sel, bbox)
	}
	b.WriteString(");\nout center tags;\n")
	return b.String()
}

// FetchTile runs the tile query for box. Rate-limit (429) and server (5xx)
// responses are retried with exponential backoff up to the attempt cap; any
// other non-2xx status fails immediately. The fair-use delay is honored
// after every request regardless of outcome.
func (c *Client) FetchTile(ctx context.Context, box geo.BoundingBox) (*TileResponse, error) {
	query := BuildQuery(box)

	backoff := c.initialBackoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.post(ctx, query)
		c.sleep(c.requestDelay)

		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("overpass query canceled: %w", ctx.Err())
			}
			c.log.Warn("overpass request failed", "attempt", attempt, "err", err)
			if attempt < c.maxAttempts {
				c.sleep(backoff)
				backoff *= 2
			}
			continue
		}

		switch {
		case resp.status == http.StatusOK:
			var tile TileResponse
			if err := json.Unmarshal(resp.body, &tile); err != nil {
				return nil, fmt.Errorf("decoding overpass response: %w", err)
			}
			return &tile, nil

		case resp.status == http.StatusTooManyRequests || resp.status >= 500:
			if attempt == c.maxAttempts {
				continue
			}
			c.log.Warn("overpass transient error, backing off",
				"status", resp.status, "attempt", attempt, "backoff", backoff)
			c.sleep(backoff)
			backoff *= 2

		default:
			return nil, fmt.Errorf("overpass returned status %d", resp.status)
		}
	}

	return nil, fmt.Errorf("overpass: giving up after %d attempts", c.maxAttempts)
}

type postResult struct {
	status int
	body   []byte
}

func (c *Client) post(ctx context.Context, query string) (*postResult, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading overpass response: %w", err)
	}

	return &postResult{status: resp.StatusCode, body: body}, nil
}
