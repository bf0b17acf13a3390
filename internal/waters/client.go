// Package waters talks to the EPA WATERS point indexing and navigation
// delineation services, used for the part of a watershed that lies south of
// the border.
package waters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/jengzang/fwa-watersheds-go/internal/ratelimit"
	"github.com/jengzang/fwa-watersheds-go/internal/retry"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

const (
	DefaultPointIndexingURL = "http://ofmpub.epa.gov/waters10/PointIndexing.Service?"
	DefaultDelineationURL   = "http://ofmpub.epa.gov/waters10/NavigationDelineation.Service?"

	// DefaultMaxDistance is the upstream navigation limit in km
	DefaultMaxDistance = 560
)

var (
	// ErrNoMatch means the service found no flowline or returned no shape
	ErrNoMatch = errors.New("no match from WATERS service")
	// ErrService means the service could not be reached or answered with an error
	ErrService = errors.New("WATERS service failure")
)

// Config configures a Client. Zero values take the defaults.
type Config struct {
	PointIndexingURL string
	DelineationURL   string
	Tolerance        float64 // point indexing search distance, km
	MaxDistance      float64 // upstream navigation distance, km
	Retries          int
	Backoff          time.Duration
}

// Match is a point indexed onto an NHDPlus flowline
type Match struct {
	ComID        int64
	Measure      float64
	PathDistance float64
}

// Client calls the WATERS services with rate limiting and retries
type Client struct {
	http    *http.Client
	log     logrus.FieldLogger
	limiter *ratelimit.Limiter
	cfg     Config
	project *spatial.Albers
}

// NewClient creates a client. limiter may be nil. Delineated shapes are
// projected with proj before they are returned.
func NewClient(httpClient *http.Client, log logrus.FieldLogger, limiter *ratelimit.Limiter, proj *spatial.Albers, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.PointIndexingURL == "" {
		cfg.PointIndexingURL = DefaultPointIndexingURL
	}
	if cfg.DelineationURL == "" {
		cfg.DelineationURL = DefaultDelineationURL
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if proj == nil {
		proj = spatial.BCAlbers
	}
	return &Client{http: httpClient, log: log, limiter: limiter, cfg: cfg, project: proj}
}

// IndexPoint finds the flowline nearest to p
func (c *Client) IndexPoint(ctx context.Context, p spatial.LonLat) (*Match, error) {
	params := url.Values{}
	params.Set("pGeometry", fmt.Sprintf("POINT(%s %s)", fmtFloat(p.Lon), fmtFloat(p.Lat)))
	params.Set("pResolution", "2")
	params.Set("pPointIndexingMethod", "DISTANCE")
	params.Set("pPointIndexingMaxDist", fmtFloat(c.cfg.Tolerance))
	params.Set("pOutputPathFlag", "FALSE")

	body, err := c.get(ctx, c.cfg.PointIndexingURL, params)
	if err != nil {
		return nil, err
	}

	output := gjson.GetBytes(body, "output")
	if !output.Exists() || output.Type == gjson.Null {
		return nil, fmt.Errorf("point indexing at %v,%v: %w", p.Lon, p.Lat, ErrNoMatch)
	}
	comid := output.Get("ary_flowlines.0.comid")
	if !comid.Exists() {
		return nil, fmt.Errorf("point indexing at %v,%v returned no flowline: %w", p.Lon, p.Lat, ErrNoMatch)
	}

	m := &Match{
		ComID:        comid.Int(),
		Measure:      output.Get("ary_flowlines.0.fmeasure").Float(),
		PathDistance: output.Get("path_distance").Float(),
	}
	c.log.WithFields(logrus.Fields{
		"comid":         m.ComID,
		"measure":       m.Measure,
		"path_distance": m.PathDistance,
	}).Debug("Indexed point")
	return m, nil
}

// DelineateUpstream returns the aggregated catchment upstream of m, projected
func (c *Client) DelineateUpstream(ctx context.Context, m *Match) (geom.Geometry, error) {
	params := url.Values{}
	params.Set("pNavigationType", "UT")
	params.Set("pStartComid", strconv.FormatInt(m.ComID, 10))
	params.Set("pStartMeasure", fmtFloat(m.Measure))
	params.Set("pMaxDistance", fmtFloat(c.cfg.MaxDistance))
	params.Set("pFeatureType", "CATCHMENT")
	params.Set("pOutputFlag", "FEATURE")
	params.Set("pAggregationFlag", "TRUE")
	params.Set("optOutGeomFormat", "GEOJSON")
	params.Set("optOutPrettyPrint", "0")

	body, err := c.get(ctx, c.cfg.DelineationURL, params)
	if err != nil {
		return geom.Geometry{}, err
	}

	shape := gjson.GetBytes(body, "output.shape")
	if !shape.Exists() || shape.Type == gjson.Null {
		return geom.Geometry{}, fmt.Errorf("delineation from comid %d: %w", m.ComID, ErrNoMatch)
	}
	g, err := c.shapeToGeometry(shape)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("delineation from comid %d: %w", m.ComID, err)
	}
	return g, nil
}

// shapeToGeometry reads a GeoJSON polygon or multipolygon. The service does
// not always set the type, so nesting depth decides.
func (c *Client) shapeToGeometry(shape gjson.Result) (geom.Geometry, error) {
	coords := shape.Get("coordinates")
	if !coords.IsArray() || len(coords.Array()) == 0 {
		return geom.Geometry{}, ErrNoMatch
	}

	multi := shape.Get("type").String() == "MultiPolygon" || coords.Get("0.0.0").IsArray()

	var wkt string
	if multi {
		var polys [][][]spatial.XY
		for _, p := range coords.Array() {
			polys = append(polys, c.rings(p))
		}
		wkt = spatial.MultiPolygonWKT(polys)
	} else {
		wkt = spatial.PolygonWKT(c.rings(coords))
	}

	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to build shape: %w", err)
	}
	return g, nil
}

func (c *Client) rings(poly gjson.Result) [][]spatial.XY {
	var rings [][]spatial.XY
	for _, r := range poly.Array() {
		var ring []spatial.XY
		for _, pt := range r.Array() {
			ll := spatial.LonLat{Lon: pt.Get("0").Float(), Lat: pt.Get("1").Float()}
			ring = append(ring, c.project.Forward(ll))
		}
		rings = append(rings, ring)
	}
	return rings
}

// get issues a rate limited GET, retrying network errors, 429 and 5xx with
// exponential backoff
func (c *Client) get(ctx context.Context, base string, params url.Values) ([]byte, error) {
	u := base + params.Encode()
	policy := retry.Policy{Retries: c.cfg.Retries, Backoff: c.cfg.Backoff}

	var body []byte
	err := retry.Do(ctx, policy, c.log.WithField("service", base), func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, base); err != nil {
				return retry.Permanent(err)
			}
		}
		b, err := c.do(ctx, u)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

// do issues one request. Errors that a retry cannot fix are Permanent.
func (c *Client) do(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s", ErrService, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrService, resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrService, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, retry.Permanent(fmt.Errorf("%w: response is not JSON", ErrService))
	}
	if code := gjson.GetBytes(body, "status.status_code"); code.Exists() && code.Int() != 0 {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrService, gjson.GetBytes(body, "status.status_message").String()))
	}
	return body, nil
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
