package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/domain"
	"github.com/i-Mobyl/cursor-todo-app/listview"
	"github.com/i-Mobyl/cursor-todo-app/reorder"
	"github.com/i-Mobyl/cursor-todo-app/session"
)

const maxBodySize = 64 << 10

var errBadRequest = errors.New("invalid body")

// Option adjusts optional API behaviour.
type Option func(*handlers)

// WithDeduper enables Idempotency-Key handling on task creation.
func WithDeduper(d Deduper) Option {
	return func(h *handlers) { h.deduper = d }
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, sessions *Sessions, auth Authenticator, logger *log.Logger, opts ...Option) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.JSONSerializer = sonicSerializer{}
	e.GET("/healthz", healthz)

	h := &handlers{sessions: sessions, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	g := e.Group("/api", RequestMetrics(logger), GzipRequestMiddleware(), RequireSession(auth))
	g.GET("/tasks", h.listTasks)
	g.POST("/tasks", h.createTask, Idempotent(h.deduper, logger))
	g.PATCH("/tasks/:id", h.patchTask)
	g.DELETE("/tasks/:id", h.deleteTask)
	g.POST("/tasks/:id/toggle", h.toggleTask)
	g.POST("/tasks/:id/edit", h.startEdit)
	g.POST("/edit", h.saveEdit)
	g.DELETE("/edit", h.cancelEdit)
	g.POST("/sort", h.beginSort)
	g.POST("/sort/moves", h.moveTasks)
	g.POST("/sort/done", h.doneSorting)
	g.GET("/stream", h.stream)
}

func healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type handlers struct {
	sessions *Sessions
	deduper  Deduper
	logger   *log.Logger
}

func (h *handlers) view(c echo.Context) (*listview.View, error) {
	ctx := c.Request().Context()
	sess, err := session.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return h.sessions.View(ctx, sess)
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func parseDue(s *string) (*domain.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// respond maps err onto a status code: validation 400, unknown task 404,
// wrong mode 409, store failures 502.
func (h *handlers) respond(c echo.Context, status int, v *listview.View, err error) error {
	if err == nil {
		if m := metricsFrom(c); m != nil {
			m.SetTasks(len(v.Tasks()))
		}
		return c.JSON(status, snapshot(v))
	}
	switch {
	case errors.Is(err, session.ErrNoSession):
		setErrorStage(c, "auth")
		return c.String(http.StatusUnauthorized, err.Error())
	case domain.IsValidation(err), errors.Is(err, errBadRequest), errors.Is(err, reorder.ErrIndexOutOfRange):
		setErrorStage(c, "validation")
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrTaskNotFound):
		setErrorStage(c, "not_found")
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, reorder.ErrAlreadyReordering),
		errors.Is(err, reorder.ErrNotReordering),
		errors.Is(err, reorder.ErrCommitInProgress),
		errors.Is(err, listview.ErrTaskCompleted),
		errors.Is(err, listview.ErrNotEditing):
		setErrorStage(c, "state")
		return c.String(http.StatusConflict, err.Error())
	case errors.Is(err, errShuttingDown):
		setErrorStage(c, "shutdown")
		return c.String(http.StatusServiceUnavailable, err.Error())
	default:
		setErrorStage(c, "store")
		h.logger.WithField("route", c.Path()).WithError(err).Error("request failed")
		return c.String(http.StatusBadGateway, "task store unavailable")
	}
}

func (h *handlers) listTasks(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	return h.respond(c, http.StatusOK, v, nil)
}

func (h *handlers) createTask(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	var req createRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respond(c, 0, v, err)
	}
	due, err := parseDue(req.DueDate)
	if err != nil {
		return h.respond(c, 0, v, err)
	}
	if _, err := v.Add(c.Request().Context(), req.Text, due); err != nil {
		return h.respond(c, 0, v, err)
	}
	return h.respond(c, http.StatusCreated, v, nil)
}

// patchTask applies each present field as its own list action, stopping at
// the first failure.
func (h *handlers) patchTask(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	var req patchRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respond(c, 0, v, err)
	}
	if req.Text == nil && req.Completed == nil && req.DueDate == nil && !req.ClearDueDate {
		return h.respond(c, 0, v, fmt.Errorf("%w: empty patch", errBadRequest))
	}
	ctx := c.Request().Context()
	id := c.Param("id")

	if req.Text != nil {
		if err := v.Edit(ctx, id, *req.Text); err != nil {
			return h.respond(c, 0, v, err)
		}
	}
	switch {
	case req.ClearDueDate:
		err = v.ClearDueDate(ctx, id)
	case req.DueDate != nil:
		var due domain.Date
		if due, err = domain.ParseDate(*req.DueDate); err == nil {
			err = v.SetDueDate(ctx, id, due)
		}
	}
	if err != nil {
		return h.respond(c, 0, v, err)
	}
	if req.Completed != nil {
		if err := v.SetCompleted(ctx, id, *req.Completed); err != nil {
			return h.respond(c, 0, v, err)
		}
	}
	return h.respond(c, http.StatusOK, v, nil)
}

func (h *handlers) toggleTask(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	return h.respond(c, http.StatusOK, v, v.Toggle(c.Request().Context(), c.Param("id")))
}

func (h *handlers) deleteTask(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	return h.respond(c, http.StatusOK, v, v.Delete(c.Request().Context(), c.Param("id")))
}

func (h *handlers) startEdit(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	return h.respond(c, http.StatusOK, v, v.StartEdit(c.Param("id")))
}

func (h *handlers) saveEdit(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	var req editRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respond(c, 0, v, err)
	}
	err = v.SaveEdit(c.Request().Context(), req.Text)
	if errors.Is(err, domain.ErrEmptyText) {
		// Saving blank text only leaves edit mode.
		err = nil
	}
	return h.respond(c, http.StatusOK, v, err)
}

func (h *handlers) cancelEdit(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	v.CancelEdit()
	return h.respond(c, http.StatusOK, v, nil)
}

func (h *handlers) beginSort(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	return h.respond(c, http.StatusOK, v, v.BeginSort())
}

func (h *handlers) moveTasks(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	var req movesRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respond(c, 0, v, err)
	}
	for _, m := range req.Moves {
		if err := v.Move(m.From, m.To); err != nil {
			return h.respond(c, 0, v, err)
		}
	}
	return h.respond(c, http.StatusOK, v, nil)
}

// doneSorting always reports the list back in live mode; a failed commit is
// carried in commitError rather than as an error status.
func (h *handlers) doneSorting(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	err = v.DoneSorting(c.Request().Context())
	var commitErr *reorder.CommitError
	if errors.As(err, &commitErr) {
		setErrorStage(c, "commit")
		resp := snapshot(v)
		resp.CommitError = commitErr.Error()
		return c.JSON(http.StatusOK, resp)
	}
	return h.respond(c, http.StatusOK, v, err)
}
