package verification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/blobstore"
	"github.com/carebook/carebook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts document upload routes for doctors and the review
// queue for admins.
func (h *Handler) RegisterRoutes(protected *echo.Group) {
	docs := protected.Group("/verification/documents", auth.RequireRole(auth.RoleDoctor))
	docs.POST("", h.UploadDocument)
	docs.GET("", h.ListDocuments)
	docs.GET("/:id", h.GetDocument)
	docs.GET("/:id/download", h.DownloadDocument)
	docs.DELETE("/:id", h.DeleteDocument)

	admin := protected.Group("/admin/doctors", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/pending", h.ListPending)
	admin.POST("/:id/approve", h.Approve)
	admin.POST("/:id/reject", h.Reject)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	return id, nil
}

func (h *Handler) UploadDocument(c echo.Context) error {
	owner, err := callerID(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	category := c.FormValue("category")

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	meta, err := h.svc.UploadDocument(c.Request().Context(), owner, fileHeader.Filename, contentType, category, src)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrFileTooLarge):
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, blobstore.ErrInvalidContentType),
			errors.Is(err, blobstore.ErrInvalidCategory),
			errors.Is(err, blobstore.ErrMissingFileName):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, meta)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	owner, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListDocuments(c.Request().Context(), owner, c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*blobstore.BlobMetadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ownedDocument loads metadata and checks the caller may access it. Admins may
// access any document.
func (h *Handler) ownedDocument(c echo.Context) (*blobstore.BlobMetadata, error) {
	caller, err := callerID(c)
	if err != nil {
		return nil, err
	}
	meta, err := h.svc.GetDocumentMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	roles := auth.RolesFromContext(c.Request().Context())
	if meta.OwnerID != caller.String() && !auth.HasRole(roles, auth.RoleAdmin) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not your document")
	}
	return meta, nil
}

func (h *Handler) GetDocument(c echo.Context) error {
	meta, err := h.ownedDocument(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	if _, err := h.ownedDocument(c); err != nil {
		return err
	}

	content, meta, err := h.svc.OpenDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	defer content.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+meta.FileName+`"`)
	return c.Stream(http.StatusOK, meta.ContentType, content)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	if _, err := h.ownedDocument(c); err != nil {
		return err
	}
	if err := h.svc.DeleteDocument(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Admin review queue --

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListPending(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*PendingReview{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	profile, err := h.svc.Approve(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrProfileNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNotPending):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, profile)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	profile, err := h.svc.Reject(c.Request().Context(), id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingReason):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrProfileNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNotPending):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, profile)
}
