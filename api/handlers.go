package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefeed/linktree"
	"storefeed/storage"
	"storefeed/youtube"
)

type handler struct {
	videos storage.VideoStore
	links  *linktree.Service
	sync   Syncer
	limits youtube.Limits
	logger *zap.Logger
}

// videoView is the public shape of a stored video.
type videoView struct {
	ID        string            `json:"id"`
	VideoID   string            `json:"videoid"`
	Type      storage.VideoType `json:"type"`
	Title     string            `json:"title"`
	Thumbnail string            `json:"thumbnail"`
	Order     int               `json:"order"`
}

// GET /youtube
func (h *handler) listVideos(c *fiber.Ctx) error {
	videos, err := h.videos.ListVideos(c.UserContext())
	if err != nil {
		return err
	}
	views := make([]videoView, len(videos))
	for i, v := range videos {
		views[i] = videoView{
			ID:        v.ID,
			VideoID:   v.VideoID,
			Type:      v.Type,
			Title:     v.Title,
			Thumbnail: v.Thumbnail,
			Order:     v.Order,
		}
	}
	return c.JSON(fiber.Map{"videos": views})
}

// POST /youtube
func (h *handler) triggerSync(c *fiber.Ctx) error {
	if h.sync == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "youtube sync is not configured")
	}

	result, err := h.sync.Run(c.UserContext(), h.limits)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"result": result})
	case errors.Is(err, youtube.ErrSyncInProgress):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, youtube.ErrSourceFetchFailed):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return err
	}
}

// GET /youtube/status
func (h *handler) syncStatus(c *fiber.Ctx) error {
	if h.sync == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "youtube sync is not configured")
	}
	state, err := h.sync.Status(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": state})
}

// GET /linktree/linkrow[?active=true]
func (h *handler) listLinkRows(c *fiber.Ctx) error {
	rows, err := h.links.List(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// POST /linktree/linkrow
func (h *handler) createLinkRow(c *fiber.Ctx) error {
	var in linktree.Input
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	row, err := h.links.Create(c.UserContext(), in)
	if err != nil {
		return linkError(err)
	}
	return c.JSON(fiber.Map{"linkrow": row})
}

// POST /linktree/update
func (h *handler) updateLinkRow(c *fiber.Ctx) error {
	var req struct {
		ID string `json:"id"`
		linktree.Input
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	row, err := h.links.Update(c.UserContext(), req.ID, req.Input)
	if err != nil {
		return linkError(err)
	}
	return c.JSON(fiber.Map{"linkrow": row})
}

// DELETE /linktree/linkrow/:id
func (h *handler) deleteLinkRow(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.links.Delete(c.UserContext(), id); err != nil {
		return linkError(err)
	}
	return c.JSON(fiber.Map{"id": id, "deleted": true})
}

// linkError maps link-tree and storage errors to HTTP statuses.
func linkError(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
