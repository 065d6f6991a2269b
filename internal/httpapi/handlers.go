package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"apitask/internal/task/model"
)

type handler struct {
	tasks    Tasks
	reports  Reports
	runs     Runs
	sched    SchedulerState
	breakers []BreakerSource
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("id must be a positive integer")
	}
	return id, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name + " must be an integer")
	}
	return n, nil
}

func (h *handler) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.reports.Ping(ctx); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	}
	v := healthView{Status: "ok"}
	if h.sched != nil {
		if !h.sched.Running() {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "scheduler stopped")
		}
		v.Scheduler = "running"
	}
	// An open breaker degrades runs but not the API itself.
	for _, b := range h.breakers {
		for name, st := range b.BreakerStates() {
			if v.Breakers == nil {
				v.Breakers = map[string]string{}
			}
			v.Breakers[name] = st
		}
	}
	return ok(c, http.StatusOK, v)
}

func (h *handler) createTask(c echo.Context) error {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid JSON payload")
	}
	t, err := h.tasks.CreateOrUpdate(c.Request().Context(), req.spec(0))
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, viewTask(t))
}

func (h *handler) updateTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid JSON payload")
	}
	t, err := h.tasks.CreateOrUpdate(c.Request().Context(), req.spec(id))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, viewTask(t))
}

func (h *handler) listTasks(c echo.Context) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	size, err := queryInt(c, "size")
	if err != nil {
		return err
	}
	q := model.ListQuery{
		ProjectName: c.QueryParam("project"),
		NameFilter:  c.QueryParam("name"),
		Page:        page,
		PageSize:    size,
	}.Normalize()

	items, total, err := h.tasks.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	out := taskPage{Items: make([]taskView, 0, len(items)), Total: total, Page: q.Page, PageSize: q.PageSize}
	for _, t := range items {
		out.Items = append(out.Items, viewTask(t))
	}
	return ok(c, http.StatusOK, out)
}

func (h *handler) getTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.tasks.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, viewDetail(d))
}

func (h *handler) deleteTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.tasks.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// command adapts a lifecycle transition to a handler returning the fresh task.
func (h *handler) command(fn func(ctx context.Context, id int64) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		if err := fn(ctx, id); err != nil {
			return err
		}
		d, err := h.tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, viewDetail(d))
	}
}

func (h *handler) runTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	reportID, err := h.tasks.RunNow(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, map[string]int64{"report_id": reportID})
}

func (h *handler) taskReports(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	if limit <= 0 || limit > model.MaxPageSize {
		limit = model.DefaultPageSize
	}
	ctx := c.Request().Context()
	if _, err := h.tasks.Get(ctx, id); err != nil {
		return err
	}
	reps, err := h.reports.LatestReports(ctx, id, limit)
	if err != nil {
		return err
	}
	out := make([]reportView, 0, len(reps))
	for _, r := range reps {
		out = append(out, viewReport(r))
	}
	return ok(c, http.StatusOK, out)
}

// getReport serves the rendered artifact; ?format=json returns metadata instead.
func (h *handler) getReport(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, err := h.reports.GetReport(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if c.QueryParam("format") == "json" {
		return ok(c, http.StatusOK, viewReport(r))
	}
	ct := r.ContentType
	if ct == "" {
		ct = echo.MIMETextPlainCharsetUTF8
	}
	return c.Blob(http.StatusOK, ct, r.Body)
}

func (h *handler) listRuns(c echo.Context) error {
	return ok(c, http.StatusOK, h.runs.Snapshot())
}
