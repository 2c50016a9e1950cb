package api

import (
	"image"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/faceattend/internal/enrollment"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/logger"
)

// maxEnrollFiles caps the number of images in one enrollment upload.
const maxEnrollFiles = 200

// IdentityResponse is an identity without its embeddings.
type IdentityResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Embeddings int    `json:"embeddings"`
	Photos     int    `json:"photos"`
}

// IdentityRequest creates or updates an identity.
type IdentityRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

func toIdentityResponse(ident facestore.Identity) IdentityResponse {
	return IdentityResponse{
		ID:         ident.ID,
		Name:       ident.Name,
		Department: ident.Department,
		Embeddings: len(ident.Embeddings),
		Photos:     ident.PhotoCount,
	}
}

func (c *Controller) initIdentityRoutes() {
	if c.deps.Store == nil {
		return
	}
	g := c.Group.Group("/identities")
	g.GET("", c.ListIdentities)
	g.POST("", c.CreateIdentity)
	g.GET("/:id", c.GetIdentity)
	g.PATCH("/:id", c.UpdateIdentity)
	g.DELETE("/:id", c.DeleteIdentity)
	if c.deps.Enroller != nil {
		g.POST("/:id/enroll", c.EnrollIdentity)
	}
}

// ListIdentities handles GET /api/v1/identities
func (c *Controller) ListIdentities(ctx echo.Context) error {
	idents := c.deps.Store.Identities()
	out := make([]IdentityResponse, 0, len(idents))
	for _, ident := range idents {
		out = append(out, toIdentityResponse(ident))
	}
	return ctx.JSON(http.StatusOK, out)
}

// CreateIdentity handles POST /api/v1/identities
func (c *Controller) CreateIdentity(ctx echo.Context) error {
	var req IdentityRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.Name) == "" {
		return c.HandleError(ctx, nil, "id and name are required", http.StatusBadRequest)
	}
	if err := c.deps.Store.AddIdentityMetadataOnly(req.ID, req.Name, req.Department); err != nil {
		return c.fail(ctx, err, "failed to create identity")
	}
	ident, err := c.deps.Store.Identity(req.ID)
	if err != nil {
		return c.fail(ctx, err, "failed to read identity")
	}
	return ctx.JSON(http.StatusCreated, toIdentityResponse(ident))
}

// GetIdentity handles GET /api/v1/identities/:id
func (c *Controller) GetIdentity(ctx echo.Context) error {
	ident, err := c.deps.Store.Identity(ctx.Param("id"))
	if err != nil {
		return c.fail(ctx, err, "identity not found")
	}
	return ctx.JSON(http.StatusOK, toIdentityResponse(ident))
}

// UpdateIdentity handles PATCH /api/v1/identities/:id. Empty fields keep
// their current value.
func (c *Controller) UpdateIdentity(ctx echo.Context) error {
	id := ctx.Param("id")
	current, err := c.deps.Store.Identity(id)
	if err != nil {
		return c.fail(ctx, err, "identity not found")
	}
	var req IdentityRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	name, dept := current.Name, current.Department
	if strings.TrimSpace(req.Name) != "" {
		name = req.Name
	}
	if strings.TrimSpace(req.Department) != "" {
		dept = req.Department
	}
	if err := c.deps.Store.UpdateIdentity(id, name, dept); err != nil {
		return c.fail(ctx, err, "failed to update identity")
	}
	updated, err := c.deps.Store.Identity(id)
	if err != nil {
		return c.fail(ctx, err, "failed to read identity")
	}
	return ctx.JSON(http.StatusOK, toIdentityResponse(updated))
}

// DeleteIdentity handles DELETE /api/v1/identities/:id
func (c *Controller) DeleteIdentity(ctx echo.Context) error {
	if err := c.deps.Store.DeleteIdentity(ctx.Param("id")); err != nil {
		return c.fail(ctx, err, "failed to delete identity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// EnrollIdentity handles POST /api/v1/identities/:id/enroll. The multipart
// form carries the images in "frames". When "name" is set the identity is
// created or replaced with that name and "department"; otherwise it must
// already exist.
func (c *Controller) EnrollIdentity(ctx echo.Context) error {
	id := ctx.Param("id")
	form, err := ctx.MultipartForm()
	if err != nil {
		return c.HandleError(ctx, err, "expected a multipart form", http.StatusBadRequest)
	}
	files := form.File["frames"]
	if len(files) == 0 {
		return c.HandleError(ctx, nil, "no frames uploaded", http.StatusBadRequest)
	}
	if len(files) > maxEnrollFiles {
		return c.HandleError(ctx, nil, "too many frames uploaded", http.StatusRequestEntityTooLarge)
	}

	frames := make([]image.Image, 0, len(files))
	for _, fh := range files {
		img, err := decodeUpload(fh)
		if err != nil {
			c.log.Debug("skipping undecodable upload",
				logger.String("filename", fh.Filename),
				logger.Error(err))
			continue
		}
		frames = append(frames, img)
	}

	reqCtx := ctx.Request().Context()
	name := strings.TrimSpace(ctx.FormValue("name"))
	var res enrollment.Result
	if name != "" {
		res, err = c.deps.Enroller.RegisterFromFrames(reqCtx, id, name, strings.TrimSpace(ctx.FormValue("department")), frames)
	} else {
		res, err = c.deps.Enroller.RegisterExisting(reqCtx, id, frames)
	}
	if err != nil {
		return c.fail(ctx, err, "enrollment failed")
	}
	return ctx.JSON(http.StatusOK, res)
}

func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryFileParsing).
			Context("filename", fh.Filename).
			Build()
	}
	return img, nil
}
