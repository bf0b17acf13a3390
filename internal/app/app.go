package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/api"
	"github.com/jengzang/fwa-watersheds-go/internal/config"
	"github.com/jengzang/fwa-watersheds-go/internal/database"
	"github.com/jengzang/fwa-watersheds-go/internal/dem"
	"github.com/jengzang/fwa-watersheds-go/internal/graph"
	"github.com/jengzang/fwa-watersheds-go/internal/handler"
	"github.com/jengzang/fwa-watersheds-go/internal/raster"
	"github.com/jengzang/fwa-watersheds-go/internal/ratelimit"
	"github.com/jengzang/fwa-watersheds-go/internal/repository"
	"github.com/jengzang/fwa-watersheds-go/internal/retry"
	"github.com/jengzang/fwa-watersheds-go/internal/service"
	"github.com/jengzang/fwa-watersheds-go/internal/spatial"
	"github.com/jengzang/fwa-watersheds-go/internal/waters"
	"github.com/jengzang/fwa-watersheds-go/internal/watershed"
)

// BasinStore is a basin unit store the fixture loader writes to and the
// cross-border extender walks
type BasinStore interface {
	repository.BasinWriter
	watershed.BasinGraph
}

// App holds the wired components shared by the server and the CLI
type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *sql.DB

	Streams    *repository.StreamRepository
	Watersheds *repository.WatershedRepository
	Events     *repository.EventRepository
	Fragments  *repository.FragmentRepository
	Runs       *repository.RunRepository
	Basins     BasinStore

	Pipeline *watershed.Pipeline
	Service  *service.WatershedService

	graph    graph.Client
	limiters []*ratelimit.Limiter
}

// Open connects the store and runs migrations. The pipeline is not built;
// call Wire for that.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	db, err := database.Open(ctx, database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrationManager(db, log).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Streams:    repository.NewStreamRepository(db),
		Watersheds: repository.NewWatershedRepository(db),
		Events:     repository.NewEventRepository(db),
		Fragments:  repository.NewFragmentRepository(db),
		Runs:       repository.NewRunRepository(db),
	}

	if cfg.Graph.URI == "" {
		a.Basins = repository.NewBasinRepository(db)
		return a, nil
	}
	client, err := graph.NewNeo4jClient(ctx, graph.Options{
		URI:      cfg.Graph.URI,
		Database: cfg.Graph.Database,
		Username: cfg.Graph.Username,
		Password: cfg.Graph.Password,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect basin graph: %w", err)
	}
	a.graph = client
	a.Basins = repository.NewGraphBasinRepository(client)
	log.WithField("uri", cfg.Graph.URI).Info("Basin units served from neo4j")
	return a, nil
}

// Wire builds the refiners, the cross-border extender, the pipeline and
// the service
func (a *App) Wire() error {
	cfg := a.Config
	httpClient := &http.Client{Timeout: cfg.CrossBorder.Timeout}

	var source dem.Source
	switch cfg.DEM.Source {
	case "file":
		source = dem.NewFileSource(cfg.DEM.Path)
	default:
		wcs := dem.NewWCSSource(httpClient, a.Log, cfg.DEM.URL, cfg.DEM.Coverage, cfg.DEM.CellSize)
		wcs.Retry = retry.Policy{Retries: cfg.CrossBorder.Retries, Backoff: cfg.CrossBorder.Backoff}
		source = wcs
	}
	demRefiner := watershed.NewDEMRefiner(source, raster.NewD8Engine(), a.Streams, watershed.DEMOptions{
		Expansion:    cfg.DEM.Expansion,
		HexEdge:      cfg.DEM.HexEdge,
		SnapDistance: cfg.DEM.SnapDistance,
		BurnDepth:    cfg.DEM.BurnDepth,
	}, a.Log)

	extender, err := a.extender(httpClient)
	if err != nil {
		return err
	}

	a.Pipeline = watershed.NewPipeline(watershed.Deps{
		Streams:    a.Streams,
		Watersheds: a.Watersheds,
		Events:     a.Events,
		Fragments:  a.Fragments,
		Runs:       a.Runs,
		Cut:        watershed.NewCutRefiner(a.Log),
		DEM:        demRefiner,
		Extender:   extender,
	}, watershed.Options{
		Workers:       cfg.Workers,
		SearchRadius:  cfg.Referencing.SearchRadius,
		Closest:       cfg.Referencing.Closest,
		Thresholds:    cfg.Refinement.Thresholds,
		FallbackToDEM: cfg.Refinement.FallbackToDEM,
		PointTimeout:  cfg.PointTimeout,
	}, a.Log)

	a.Service = service.NewWatershedService(a.Streams, a.Runs, a.Fragments, a.Events, a.Pipeline, a.Log)
	return nil
}

func (a *App) extender(httpClient *http.Client) (*watershed.CrossBorderExtender, error) {
	cfg := a.Config.CrossBorder
	opts := watershed.CrossBorderOptions{
		Graph:      a.Basins,
		Projection: spatial.BCAlbers,
		MaxSteps:   cfg.MaxSteps,
	}

	if cfg.BordersFile != "" {
		f, err := os.Open(cfg.BordersFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open borders file: %w", err)
		}
		defer f.Close()
		if opts.Borders, opts.Jurisdiction, err = watershed.LoadBorders(f); err != nil {
			return nil, err
		}
		a.Log.WithFields(logrus.Fields{
			"crossings":    opts.Borders.Len(),
			"jurisdiction": opts.Jurisdiction != nil,
		}).Info("Loaded border crossings")
	}

	var limiter *ratelimit.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond, time.Second)
		a.limiters = append(a.limiters, limiter)
	}
	opts.External = waters.NewClient(httpClient, a.Log, limiter, spatial.BCAlbers, waters.Config{
		PointIndexingURL: cfg.PointIndexingURL,
		DelineationURL:   cfg.DelineationURL,
		Tolerance:        cfg.Tolerance,
		MaxDistance:      cfg.MaxDistance,
		Retries:          cfg.Retries,
		Backoff:          cfg.Backoff,
	})
	return watershed.NewCrossBorderExtender(opts, a.Log), nil
}

// Router builds the HTTP API over the wired service
func (a *App) Router() *gin.Engine {
	var limiter *ratelimit.Limiter
	if a.Config.Server.RateLimit > 0 {
		limiter = ratelimit.New(a.Config.Server.RateLimit, a.Config.Server.RateWindow)
		a.limiters = append(a.limiters, limiter)
	}
	if a.Config.Server.JWTSecret == "" {
		a.Log.Warn("server.jwt_secret is empty, run submission is unauthenticated")
	}
	return api.SetupRouter(a.Config, handler.NewWatershedHandler(a.Service), limiter, a.Log)
}

// Close waits for background runs and releases connections
func (a *App) Close(ctx context.Context) error {
	if a.Service != nil {
		a.Service.Wait()
	}
	for _, l := range a.limiters {
		l.Close()
	}
	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			a.Log.WithError(err).Warn("Failed to close basin graph")
		}
	}
	return a.DB.Close()
}
