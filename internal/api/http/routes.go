package httpapi

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
	"github.com/i474232898/grid-profile-aggregation/internal/store"
	"github.com/i474232898/grid-profile-aggregation/internal/view"
)

var validate = validator.New()

// Deps are the components the handlers serve.
type Deps struct {
	Calendar   *grid.Calendar
	Monthly    *grid.MonthlyProfileCache
	Sessions   *view.Registry
	Controller *view.Controller
	Store      *store.MemoryStore
}

// ErrorHandler renders every error as {"error":true,"message":...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterMetrics exposes the Prometheus registry at /metrics.
func RegisterMetrics(app *fiber.App) {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	v1 := app.Group("/api/v1")

	v1.Get("/calendar", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"start":  d.Calendar.Start(),
			"end":    d.Calendar.End(),
			"days":   d.Calendar.Days(),
			"months": d.Calendar.Months(),
		})
	})

	v1.Get("/months", func(c *fiber.Ctx) error {
		set, err := d.Monthly.Ensure(c.UserContext())
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{
			"months":  set.Summaries(),
			"missing": set.Missing(),
		})
	})

	v1.Get("/months/status", func(c *fiber.Ctx) error {
		return c.JSON(d.Monthly.Status())
	})

	v1.Post("/sessions", func(c *fiber.Ctx) error {
		s := d.Sessions.Create()
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    s.ID,
			"views": view.Kinds,
		})
	})

	views := v1.Group("/sessions/:id/views/:view")

	views.Post("/day", func(c *fiber.Ctx) error {
		s, kind, err := bindView(c, d.Sessions)
		if err != nil {
			return err
		}
		// The date ends up in stored view states; detach it from the request buffer.
		q := dayQuery{Date: utils.CopyString(c.Query("date"))}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		out, err := d.Controller.RefreshDay(c.UserContext(), s, kind, q.Date)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(out)
	})

	views.Post("/month", func(c *fiber.Ctx) error {
		s, kind, err := bindView(c, d.Sessions)
		if err != nil {
			return err
		}
		var q monthQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		out, err := d.Controller.RefreshMonth(c.UserContext(), s, kind, q.Index)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(out)
	})

	views.Get("", func(c *fiber.Ctx) error {
		s, kind, err := bindView(c, d.Sessions)
		if err != nil {
			return err
		}
		state, err := d.Store.GetLatest(s.ViewKey(kind))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{
			"view":    kind,
			"state":   state,
			"refresh": s.Coordinator(kind).Snapshot(),
		})
	})

	views.Get("/history", func(c *fiber.Ctx) error {
		s, kind, err := bindView(c, d.Sessions)
		if err != nil {
			return err
		}
		states, err := d.Store.History(s.ViewKey(kind))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(fiber.Map{
			"view":   kind,
			"states": states,
		})
	})
}

// viewParams holds the path parameters addressing one view of a session.
type viewParams struct {
	ID   string `validate:"required,uuid"`
	View string `validate:"required,oneof=consumption flow"`
}

func bindView(c *fiber.Ctx, sessions *view.Registry) (*view.Session, view.Kind, error) {
	p := viewParams{ID: utils.CopyString(c.Params("id")), View: utils.CopyString(c.Params("view"))}
	if err := validate.Struct(p); err != nil {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s, err := sessions.Get(p.ID)
	if err != nil {
		return nil, "", mapError(err)
	}
	kind, _ := view.ParseKind(p.View)
	return s, kind, nil
}

// dayQuery holds query parameters for a day refresh.
type dayQuery struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

// monthQuery holds query parameters for a month refresh.
type monthQuery struct {
	Index int `validate:"gte=0"`
}

func (q *monthQuery) bind(c *fiber.Ctx) error {
	raw := c.Query("index")
	if raw == "" {
		return errors.New("index query parameter is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return errors.New("index must be an integer")
	}
	q.Index = n
	return validate.Struct(q)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, grid.ErrOutOfRange), errors.Is(err, view.ErrUnknownView):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, view.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
