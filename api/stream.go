package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// stream pushes the list snapshot as a server-sent event on every change
// until the client disconnects or the view closes.
func (h *handlers) stream(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return h.respond(c, 0, nil, err)
	}
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	ch := v.Watch()
	defer v.Unwatch(ch)

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for {
		data, err := sonic.Marshal(snapshot(v))
		if err != nil {
			h.logger.WithError(err).Error("encode stream event")
			return err
		}
		for _, part := range [][]byte{[]byte("data: "), data, []byte("\n\n")} {
			if _, err := c.Response().Write(part); err != nil {
				return nil
			}
		}
		flusher.Flush()
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
		}
	}
}
