package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/album"
	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/coordinator"
	"bitbucket.org/kleinnic74/pinphotos/download"
	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/gallery"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/rest"
	"bitbucket.org/kleinnic74/pinphotos/search"
	"bitbucket.org/kleinnic74/pinphotos/search/flickr"
	"github.com/gorilla/mux"
	"github.com/kleinnic74/fflags"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	dbName = "pins.db"

	shutdownTimeout = 5 * time.Second
)

type AlbumOptions struct {
	Size    int `json:"size" mapstructure:"size"`
	PerPage int `json:"perpage" mapstructure:"perpage"`
}

type DownloadOptions struct {
	Parallelism int           `json:"parallelism" mapstructure:"parallelism"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

type Options struct {
	LibDir   string          `json:"libdir" mapstructure:"libdir"`
	Port     uint            `json:"port" mapstructure:"port"`
	Flickr   flickr.Options  `json:"flickr" mapstructure:"flickr"`
	Album    AlbumOptions    `json:"album" mapstructure:"album"`
	Download DownloadOptions `json:"download" mapstructure:"download"`
	Logging  logging.Options `json:"logging" mapstructure:"logging"`
}

func DefaultOptions() Options {
	return Options{
		LibDir: "pinphotos",
		Port:   8080,
		Flickr: flickr.DefaultOptions(),
		Album: AlbumOptions{
			Size:    album.AlbumSize,
			PerPage: album.AlbumsPerPage,
		},
		Download: DownloadOptions{
			Parallelism: 4,
			Timeout:     30 * time.Second,
		},
	}
}

// DatabasePath returns the path of the pin database in libDir
func DatabasePath(libDir string) string {
	return filepath.Join(libDir, dbName)
}

// PageSize is the number of references requested per search page
func (o Options) PageSize() int {
	return o.Album.Size * o.Album.PerPage
}

func (o Options) Validate() (err error) {
	if o.LibDir == "" {
		err = multierr.Append(err, errors.New("libdir must not be empty"))
	}
	if o.Flickr.APIKey == "" {
		err = multierr.Append(err, errors.New("flickr.apikey is required"))
	}
	if o.Album.Size <= 0 || o.Album.PerPage <= 0 {
		err = multierr.Append(err, fmt.Errorf("album size and albums per page must be positive, got %d and %d", o.Album.Size, o.Album.PerPage))
	}
	if o.Download.Parallelism <= 0 {
		err = multierr.Append(err, fmt.Errorf("download.parallelism must be positive, got %d", o.Download.Parallelism))
	}
	return
}

type App struct {
	db       *bolt.DB
	repo     library.ClosableRepository
	bus      *events.Stream
	searcher *search.Instrumented
	pool     *download.Pool
	gallery  *gallery.Gallery
	router   *mux.Router

	addr string

	// cancels the contexts of all background work started by the gallery
	cancel context.CancelFunc

	shutdownHandlers shutdownHandlers
}

type shutdownHandler func(context.Context, *App) error

type shutdownHandlers struct {
	h []shutdownHandler
}

func (hdls *shutdownHandlers) Add(h shutdownHandler) {
	hdls.h = append(hdls.h, h)
}

func (hdls shutdownHandlers) Execute(ctx context.Context, a *App) (err error) {
	for i := len(hdls.h) - 1; i >= 0; i-- {
		err = multierr.Append(err, hdls.h[i](ctx, a))
	}
	return
}

// NewApp wires the application. The searcher is optional, by default photos
// are searched on Flickr.
func NewApp(ctx context.Context, o Options, searcher search.Searcher) (a *App, err error) {
	logger, ctx := logging.SubFrom(ctx, "app")

	logger.Info("Library directory", zap.String("dir", o.LibDir))
	if err = os.MkdirAll(o.LibDir, os.ModePerm); err != nil {
		return nil, err
	}

	a = &App{
		addr:   fmt.Sprintf(":%d", o.Port),
		router: mux.NewRouter(),
		bus:    events.NewStream(),
	}
	defer func() {
		if err != nil {
			a.shutdownHandlers.Execute(ctx, a)
		}
	}()

	a.db, err = bolt.Open(DatabasePath(o.LibDir), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("Failed to initialize data store: %w", err)
	}
	a.shutdownHandlers.Add(func(ctx context.Context, a *App) error {
		err := a.db.Close()
		logging.From(ctx).Info("Closed data store")
		return err
	})

	if a.repo, err = boltstore.NewBoltStore(a.db); err != nil {
		return nil, fmt.Errorf("Failed to initialize repository: %w", err)
	}

	if searcher == nil {
		searcher = flickr.NewSearcher(o.Flickr)
		logger.Info("Searching photos on Flickr", zap.String("endpoint", o.Flickr.Endpoint))
	}
	a.searcher = search.NewInstrumentedSearcher(searcher)
	coord := coordinator.New(a.searcher, o.PageSize())

	a.pool = download.NewPool(download.NewFetcher(o.Download.Timeout), o.Download.Parallelism)
	a.shutdownHandlers.Add(func(ctx context.Context, a *App) error {
		a.pool.Wait()
		logging.From(ctx).Info("Downloads drained")
		return nil
	})

	// downloads and searches of views outlive the request that started them
	var galleryCtx context.Context
	galleryCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.shutdownHandlers.Add(func(ctx context.Context, a *App) error {
		a.cancel()
		return nil
	})
	a.gallery = gallery.New(galleryCtx, a.repo, coord, a.pool, events.NewPresenter(a.bus), o.Album.Size)
	a.shutdownHandlers.Add(func(ctx context.Context, a *App) error {
		return a.gallery.Close(ctx)
	})
	logger.Info("Gallery ready", zap.Int("albumSize", o.Album.Size), zap.Int("pageSize", o.PageSize()),
		zap.Int("parallelism", o.Download.Parallelism))

	// REST Handlers

	metrics := rest.NewMetricsHandler()
	metrics.InitRoutes(a.router)

	if consts.IsDevMode() {
		debug := rest.NewDebugHandler(a.searcher)
		debug.InitRoutes(a.router)
	}

	sse := rest.NewSSEHandler(a.bus)
	sse.InitRoutes(a.router)

	pins := rest.NewPinsHandler(a.gallery, a.repo)
	pins.InitRoutes(a.router)

	photos := rest.NewPhotosHandler(a.repo)
	photos.InitRoutes(a.router)

	if err = fflags.IfEnabled(fflags.Define("api.thumbs"), func() error {
		photos.InitThumbRoutes(a.router)
		logger.Info("Thumbnails enabled")
		return nil
	}); err != nil {
		return nil, fmt.Errorf("Failed to initialize thumbnails: %w", err)
	}

	if err = fflags.IfEnabled(fflags.Define("api.websocket"), func() error {
		ws := rest.NewWebsocketHandler(a.bus)
		ws.InitRoutes(a.router)
		logger.Info("Websocket notifications enabled")
		return nil
	}); err != nil {
		return nil, fmt.Errorf("Failed to initialize websocket: %w", err)
	}

	return a, nil
}

func (a *App) Handler() http.Handler {
	return rest.WithMiddleWares(a.router, "rest")
}

func (a *App) Gallery() *gallery.Gallery {
	return a.gallery
}

// Run serves the REST API until ctx is done, then shuts down the application
func (a *App) Run(ctx context.Context) error {
	logger, ctx := logging.SubFrom(ctx, "app")

	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger, ctx := logging.SubFrom(busCtx, "eventbus")
		a.bus.Dispatch(ctx)
		logger.Info("DONE")
		return nil
	})

	server := http.Server{
		Addr:        a.addr,
		Handler:     a.Handler(),
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	group.Go(func() error {
		logger, _ := logging.SubFrom(ctx, "http")
		logger.Info("Starting HTTP server...", zap.String("bindAddr", a.addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		logger.Info("DONE")
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Stopping...")

		ctxShutdown, cancelServerShutdown := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancelServerShutdown()
		err := server.Shutdown(ctxShutdown)
		if err != nil {
			logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
		// views commit on close, the bus keeps accepting their notifications
		err = multierr.Append(err, a.Close(ctxShutdown))
		stopBus()
		return err
	})

	err := group.Wait()
	if err != nil {
		logger.Error("Terminated with errors", zap.Error(err))
		return err
	}
	logger.Info("Terminated gracefully")
	return nil
}

// Close releases all resources, open views commit their downloads first
func (a *App) Close(ctx context.Context) error {
	handlers := a.shutdownHandlers
	a.shutdownHandlers = shutdownHandlers{}
	return handlers.Execute(ctx, a)
}
