package echoapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/quiz"
	"github.com/quizera/backend/core/realtime"
)

type moduleApi struct {
	svc    *quiz.Service
	hub    *realtime.Hub
	logger core.Logger
}

func registerModuleAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := moduleApi{
		svc:    deps.QuizSvc,
		hub:    deps.Hub,
		logger: deps.Logger,
	}

	mg := g.Group("/companies/:id/modules", jwt, companyMemberMiddleware())
	mg.GET("", api.query)
	mg.GET("/watch", api.watch)
	mg.POST("", api.create, teacherMiddleware())

	dg := mg.Group("/:modID", moduleObjectMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teacherMiddleware())
	dg.DELETE("", api.destroy, teacherMiddleware())
}

// Handlers

func (api *moduleApi) create(ctx echo.Context) error {
	var data quiz.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	mod, err := api.svc.Create(ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, mod)
}

func (api *moduleApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	mods, err := api.svc.QueryByCompany(ctx.Param("id"), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying modules")
	}
	if mods == nil {
		mods = []quiz.Module{}
	}
	return ctx.JSON(http.StatusOK, mods)
}

func (api *moduleApi) retrieve(ctx echo.Context) error {
	mod, ok := ctx.Get("object").(quiz.Module)
	if !ok {
		return errors.Wrap(errModNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *moduleApi) update(ctx echo.Context) error {
	mod, ok := ctx.Get("object").(quiz.Module)
	if !ok {
		return errors.Wrap(errModNotFoundInCtx, "retrieving object from context")
	}

	var data quiz.UpdateModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateModule")
	}
	if err := data.Validate(mod, api.svc); err != nil {
		return err
	}

	mod, err := api.svc.Update(mod, data)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *moduleApi) destroy(ctx echo.Context) error {
	mod, ok := ctx.Get("object").(quiz.Module)
	if !ok {
		return errors.Wrap(errModNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.Delete(mod); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return ctx.NoContent(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // CORS is enforced upstream
}

// watchFeed bridges hub callbacks to a single writer loop. Pushes never
// block: a consumer that cannot drain its buffer is flagged slow and cut
// loose instead of stalling the other watchers of the company.
type watchFeed struct {
	events chan realtime.Event
	slow   chan struct{}
	once   sync.Once
}

func newWatchFeed(size int) *watchFeed {
	return &watchFeed{
		events: make(chan realtime.Event, size),
		slow:   make(chan struct{}),
	}
}

func (f *watchFeed) push(evt realtime.Event) {
	select {
	case f.events <- evt:
	default:
		f.once.Do(func() { close(f.slow) })
	}
}

// watch streams the company's module change events over a WebSocket. All
// watchers of the same company share one underlying subscription.
func (api *moduleApi) watch(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	feed := newWatchFeed(64)

	detach := api.hub.Attach(ctx.Param("id"), feed.push)
	defer detach()

	// the read loop only serves to detect the client going away
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-feed.events:
			if err := conn.WriteJSON(evt); err != nil {
				return nil // client gone
			}
		case <-feed.slow:
			return nil // client overran its buffer, disconnect it
		case <-done:
			return nil
		}
	}
}

var errModNotFoundInCtx = errors.New("module object not found in echo.Context")

// moduleObjectMiddleware loads the module in the path and guards against
// cross-company access.
func moduleObjectMiddleware(svc *quiz.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			mod, err := svc.GetByID(ctx.Param("modID"))
			if err != nil {
				if errors.Cause(err) == quiz.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding module by ID")
			}
			if mod.CompanyID != ctx.Param("id") {
				return errHttpNotFound
			}
			ctx.Set("object", mod)
			return next(ctx)
		}
	}
}
