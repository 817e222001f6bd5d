// Package gallery is the boundary between the user interface and the photo
// synchronization of pins: it turns user intents into coordinator, album and
// repository operations and reports back through a Presenter.
package gallery

import (
	"context"
	"sync"

	"bitbucket.org/kleinnic74/pinphotos/album"
	"bitbucket.org/kleinnic74/pinphotos/coordinator"
	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/download"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// PinSummary is a pin with the number of photos stored for it
type PinSummary struct {
	*library.Pin
	Photos int `json:"photos"`
}

// Gallery manages pins and the views open on them. At most one view is open
// per pin.
type Gallery struct {
	ctx       context.Context
	repo      library.Repository
	coord     *coordinator.Coordinator
	pool      *download.Pool
	presenter Presenter
	albumSize int

	lock  sync.Mutex
	views map[library.PinID]*View
}

// New creates a gallery. Downloads of all views run within ctx.
func New(ctx context.Context, repo library.Repository, coord *coordinator.Coordinator, pool *download.Pool, presenter Presenter, albumSize int) *Gallery {
	if presenter == nil {
		presenter = NopPresenter{}
	}
	if albumSize <= 0 {
		albumSize = album.AlbumSize
	}
	return &Gallery{
		ctx:       ctx,
		repo:      repo,
		coord:     coord,
		pool:      pool,
		presenter: presenter,
		albumSize: albumSize,
		views:     make(map[library.PinID]*View),
	}
}

// DropPin stores a new pin and prefetches its first page
func (g *Gallery) DropPin(ctx context.Context, c gps.Coordinates) (*library.Pin, error) {
	pin := library.NewPin(c)
	if err := g.repo.AddPin(ctx, pin); err != nil {
		return nil, err
	}
	log, ctx := logging.FromWithNameAndFields(ctx, "gallery", zap.String("pin", string(pin.ID)))
	log.Info("Pin dropped", zap.Stringer("pos", c))
	g.coord.RequestFirstPage(ctx, pin.ID, c)
	return pin, nil
}

// RemovePin closes the view of the pin, deletes it with all of its photos and
// drops its pending first page
func (g *Gallery) RemovePin(ctx context.Context, id library.PinID) error {
	g.lock.Lock()
	v := g.views[id]
	delete(g.views, id)
	g.lock.Unlock()
	var err error
	if v != nil {
		err = v.Close(ctx)
	}
	if deleteErr := g.repo.DeletePin(ctx, id); deleteErr != nil {
		return multierr.Append(err, deleteErr)
	}
	g.coord.Forget(id)
	logging.From(ctx).Info("Pin removed", zap.String("pin", string(id)))
	return err
}

func (g *Gallery) Pin(ctx context.Context, id library.PinID) (*library.Pin, error) {
	return g.repo.GetPin(ctx, id)
}

// Pins returns at most maxCount pins starting at start, with their photo counts
func (g *Gallery) Pins(ctx context.Context, start, maxCount uint) ([]PinSummary, bool, error) {
	pins, hasMore, err := g.repo.FetchPinsPaged(ctx, start, maxCount)
	if err != nil {
		return nil, false, err
	}
	summaries := make([]PinSummary, len(pins))
	for i, p := range pins {
		count, err := g.repo.CountPhotos(ctx, p.ID)
		if err != nil {
			return nil, false, err
		}
		summaries[i] = PinSummary{Pin: p, Photos: count}
	}
	return summaries, hasMore, nil
}

// OpenView opens the view of a pin, or returns the view already open
func (g *Gallery) OpenView(ctx context.Context, id library.PinID) (*View, error) {
	g.lock.Lock()
	if v, found := g.views[id]; found {
		g.lock.Unlock()
		return v, nil
	}
	pin, err := g.repo.GetPin(ctx, id)
	if err != nil {
		g.lock.Unlock()
		return nil, err
	}
	log, viewCtx := logging.FromWithNameAndFields(g.ctx, "view", zap.String("pin", string(id)))
	viewCtx, cancel := context.WithCancel(viewCtx)
	v := &View{
		pin:       pin,
		repo:      g.repo,
		coord:     g.coord,
		pool:      g.pool,
		presenter: g.presenter,
		albumSize: g.albumSize,
		ctx:       viewCtx,
		cancel:    cancel,
	}
	g.views[id] = v
	g.lock.Unlock()

	log.Debug("Opening view")
	if err := v.Open(ctx); err != nil {
		g.lock.Lock()
		delete(g.views, id)
		g.lock.Unlock()
		cancel()
		return nil, err
	}
	return v, nil
}

// View returns the open view of a pin
func (g *Gallery) View(id library.PinID) (*View, bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	v, found := g.views[id]
	return v, found
}

// CloseView navigates away from the view of a pin
func (g *Gallery) CloseView(ctx context.Context, id library.PinID) error {
	g.lock.Lock()
	v, found := g.views[id]
	delete(g.views, id)
	g.lock.Unlock()
	if !found {
		return nil
	}
	return v.Close(ctx)
}

// Close closes all open views
func (g *Gallery) Close(ctx context.Context) (err error) {
	g.lock.Lock()
	views := g.views
	g.views = make(map[library.PinID]*View)
	g.lock.Unlock()
	for _, v := range views {
		err = multierr.Append(err, v.Close(ctx))
	}
	return
}
