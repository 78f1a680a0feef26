package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskdesk-api/domain"
	"taskdesk-api/storage"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, auth Authenticator, deduper Deduper, notifier Notifier, logger *log.Logger) {
	e.Use(GzipRequestMiddleware())

	e.GET("/api/tasks", listTasks(store, auth))
	e.GET("/api/tasks/:id", getTask(store, auth))
	e.POST("/api/tasks", createTask(store, auth, deduper, logger))
	e.PUT("/api/tasks/:id", updateTask(store, auth, logger))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth))
	e.POST("/api/tasks/:id/reassign", reassignTask(store, auth, notifier, logger))
	e.PUT("/api/tasks/:id/links", syncLinks(store, auth))
	e.GET("/healthz", healthz())
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type taskResponse struct {
	Task  domain.Task       `json:"task"`
	Links []domain.TaskLink `json:"links,omitempty"`
}

type createResponse struct {
	Task           domain.Task `json:"task"`
	IdempotencyKey string      `json:"idempotencyKey"`
}

type linksResponse struct {
	Links []domain.TaskLink `json:"links"`
}

type reassignRequest struct {
	Comment string `json:"comment"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// writeError maps the persistence taxonomy onto HTTP statuses. Store errors
// stay opaque 500s; nothing here retries.
func writeError(c echo.Context, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return c.String(http.StatusBadRequest, verr.Message)
	}
	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return c.String(http.StatusNotFound, nf.Message)
	}
	var ierr *storage.IntegrityError
	if errors.As(err, &ierr) {
		return c.String(http.StatusConflict, ierr.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func listTasks(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := store.ListTasks(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		live := make([]domain.Task, 0, len(tasks))
		for _, t := range tasks {
			if !t.Deleted {
				live = append(live, t)
			}
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: live})
	}
}

func getTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		task, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if task == nil {
			return c.String(http.StatusNotFound, domain.MsgTaskMissing)
		}
		links, err := store.ListLinks(ctx, task.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, taskResponse{Task: *task, Links: links})
	}
}

func createTask(store Store, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSaveRequestMetrics(ctx, logger, "/api/tasks")
		if spanCtx != nil {
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		identity, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		var payload domain.TaskPayload
		if decodeErr := decodeBody(c, &payload); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		if !payload.Has(domain.FieldManagerID) {
			// The creator manages their own task unless they delegated it.
			uid := identity.UserID
			payload.ManagerID = &uid
			payload.MarkSet(domain.FieldManagerID)
		}

		key := c.Request().Header.Get("Idempotency-Key")
		if key == "" {
			key = uuid.NewString()
		}
		dedupeUser := strconv.FormatInt(identity.UserID, 10)
		if deduper != nil {
			added, dedupeErr := deduper.Add(ctx, dedupeUser, key)
			if dedupeErr != nil {
				metrics.SetErrorStage("dedupe")
				c.Logger().Error(dedupeErr)
				err = c.String(http.StatusInternalServerError, "failed to record idempotency key")
				return err
			}
			if !added {
				metrics.SetErrorStage("duplicate")
				err = c.String(http.StatusConflict, "duplicate request")
				return err
			}
		}

		persistStart := time.Now()
		row, insertErr := store.InsertTask(ctx, payload)
		metrics.ObservePersist(time.Since(persistStart))
		if insertErr != nil {
			if deduper != nil {
				if rerr := deduper.Remove(ctx, dedupeUser, key); rerr != nil {
					logger.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, dedupeUser)
				}
			}
			metrics.SetErrorStage("persist")
			err = writeError(c, insertErr)
			return err
		}

		err = c.JSON(http.StatusCreated, createResponse{Task: *row, IdempotencyKey: key})
		return err
	}
}

func updateTask(store Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSaveRequestMetrics(ctx, logger, "/api/tasks/:id")
		if spanCtx != nil {
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		id := c.Param("id")
		task, getErr := store.GetTask(ctx, id)
		if getErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(getErr)
			err = c.String(http.StatusInternalServerError, getErr.Error())
			return err
		}
		deleted := task != nil && task.Deleted
		if msg := domain.EditBlockMessage(task != nil, deleted); msg != "" {
			metrics.SetErrorStage("edit_blocked")
			status := http.StatusNotFound
			if task != nil {
				status = http.StatusConflict
			}
			err = c.String(status, msg)
			return err
		}

		var payload domain.TaskPayload
		if decodeErr := decodeBody(c, &payload); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}

		persistStart := time.Now()
		row, updateErr := store.UpdateTask(ctx, id, payload)
		metrics.ObservePersist(time.Since(persistStart))
		if updateErr != nil {
			metrics.SetErrorStage("persist")
			err = writeError(c, updateErr)
			return err
		}

		err = c.JSON(http.StatusOK, taskResponse{Task: *row})
		return err
	}
}

func deleteTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		task, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if task == nil {
			return c.String(http.StatusNotFound, domain.MsgTaskMissing)
		}
		if !domain.CanDeleteTask(identity.Role, task.ManagerID, identity.UserID) {
			return c.String(http.StatusForbidden, "not allowed to delete this task")
		}
		if err := store.DeleteTask(ctx, task.ID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func reassignTask(store Store, auth Authenticator, notifier Notifier, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSaveRequestMetrics(ctx, logger, "/api/tasks/:id/reassign")
		if spanCtx != nil {
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		identity, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		id := c.Param("id")
		task, getErr := store.GetTask(ctx, id)
		if getErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(getErr)
			err = c.String(http.StatusInternalServerError, getErr.Error())
			return err
		}
		deleted := task != nil && task.Deleted
		if msg := domain.EditBlockMessage(task != nil, deleted); msg != "" {
			metrics.SetErrorStage("edit_blocked")
			status := http.StatusNotFound
			if task != nil {
				status = http.StatusConflict
			}
			err = c.String(status, msg)
			return err
		}
		if !domain.CanChangeState(identity.Role, task.AssigneeID, identity.UserID) {
			metrics.SetErrorStage("forbidden")
			err = c.String(http.StatusForbidden, "not allowed to change this task's state")
			return err
		}

		var req reassignRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}

		next, reason, transitionErr := domain.TransitionPendingReviewToAssigned(task.State, req.Comment)
		if transitionErr != nil {
			metrics.SetErrorStage("guard")
			err = c.String(http.StatusBadRequest, transitionErr.Error())
			return err
		}

		var payload domain.TaskPayload
		payload.State = &next
		payload.ReviewComment = &reason
		payload.MarkSet(domain.FieldState, domain.FieldReviewComment)

		persistStart := time.Now()
		row, updateErr := store.UpdateTask(ctx, id, payload)
		metrics.ObservePersist(time.Since(persistStart))
		if updateErr != nil {
			metrics.SetErrorStage("persist")
			err = writeError(c, updateErr)
			return err
		}

		// Delivery is out-of-band; a dropped notification never fails the save.
		if notifier != nil && task.AssigneeID != 0 {
			notifyStart := time.Now()
			if !notifier.TrySend(domain.PrepareNotifyPayload(task.AssigneeID, reason)) {
				logger.Warnf("notification dropped, task: %s, user: %d", id, task.AssigneeID)
			}
			metrics.ObserveNotify(time.Since(notifyStart))
		}

		err = c.JSON(http.StatusOK, taskResponse{Task: *row})
		return err
	}
}

func syncLinks(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")
		task, err := store.GetTask(ctx, id)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		deleted := task != nil && task.Deleted
		if msg := domain.EditBlockMessage(task != nil, deleted); msg != "" {
			status := http.StatusNotFound
			if task != nil {
				status = http.StatusConflict
			}
			return c.String(status, msg)
		}

		links := make([]domain.TaskLink, 0, 4)
		if err := decodeBody(c, &links); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		final, err := store.SyncTaskLinks(ctx, id, links, identity.UserID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, linksResponse{Links: final})
	}
}
