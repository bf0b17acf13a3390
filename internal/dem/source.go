package dem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/raster"
	"github.com/jengzang/fwa-watersheds-go/internal/retry"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
)

// BC 25m provincial DEM
const (
	DefaultWCSURL   = "http://delivery.openmaps.gov.bc.ca/om/wcs"
	DefaultCoverage = "pub:bc_elevation_25m_bcalb"
	DefaultCRS      = "EPSG:3005"
	DefaultCellSize = 25.0
	DefaultRetries  = 3
)

// Source supplies elevation for an extent in projected coordinates
type Source interface {
	Extract(ctx context.Context, b spatial.Bounds) (*raster.Grid, error)
}

// WCSSource requests coverage from an OGC WCS 1.0 endpoint as an ESRI ASCII grid
type WCSSource struct {
	URL        string
	Coverage   string
	CRS        string
	CellSize   float64
	Retry      retry.Policy
	httpClient *http.Client
	log        logrus.FieldLogger
}

var _ Source = (*WCSSource)(nil)

// NewWCSSource creates a WCS backed source. Empty settings fall back to the
// BC 25m DEM. A nil client gets a 60s timeout.
func NewWCSSource(httpClient *http.Client, log logrus.FieldLogger, serviceURL, coverage string, cellSize float64) *WCSSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if serviceURL == "" {
		serviceURL = DefaultWCSURL
	}
	if coverage == "" {
		coverage = DefaultCoverage
	}
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &WCSSource{
		URL:        serviceURL,
		Coverage:   coverage,
		CRS:        DefaultCRS,
		CellSize:   cellSize,
		Retry:      retry.Policy{Retries: DefaultRetries, Backoff: retry.DefaultBackoff},
		httpClient: httpClient,
		log:        log,
	}
}

// Extract implements Source
func (s *WCSSource) Extract(ctx context.Context, b spatial.Bounds) (*raster.Grid, error) {
	params := url.Values{}
	params.Set("service", "WCS")
	params.Set("version", "1.0.0")
	params.Set("request", "GetCoverage")
	params.Set("coverage", s.Coverage)
	params.Set("Format", "ArcGrid")
	params.Set("bbox", fmt.Sprintf("%s,%s,%s,%s", ftoa(b.MinX), ftoa(b.MinY), ftoa(b.MaxX), ftoa(b.MaxY)))
	params.Set("CRS", s.CRS)
	params.Set("resx", ftoa(s.CellSize))
	params.Set("resy", ftoa(s.CellSize))

	u := s.URL + "?" + params.Encode()
	log := s.log.WithField("bbox", params.Get("bbox"))
	log.Debug("requesting DEM coverage")

	var g *raster.Grid
	err := retry.Do(ctx, s.Retry, log, func() error {
		var err error
		g, err = s.getCoverage(ctx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// getCoverage makes one request. Throttling, server errors and transport
// failures are left retryable.
func (s *WCSSource) getCoverage(ctx context.Context, u string) (*raster.Grid, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build WCS request: %w", err))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to request DEM coverage: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("DEM coverage request failed: %s: %s", resp.Status, body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, retry.Permanent(err)
	}

	g, err := raster.ReadASCII(resp.Body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to parse DEM coverage: %w", err))
	}
	return g, nil
}

// FileSource windows a local ESRI ASCII grid. The file is read on first use
// and kept in memory.
type FileSource struct {
	Path string

	once sync.Once
	grid *raster.Grid
	err  error
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a file backed source
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) load() {
	f, err := os.Open(s.Path)
	if err != nil {
		s.err = fmt.Errorf("failed to open DEM file: %w", err)
		return
	}
	defer f.Close()

	s.grid, s.err = raster.ReadASCII(f)
	if s.err != nil {
		s.err = fmt.Errorf("failed to read DEM file %s: %w", s.Path, s.err)
	}
}

// Extract implements Source
func (s *FileSource) Extract(ctx context.Context, b spatial.Bounds) (*raster.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	return s.grid.Window(b)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
