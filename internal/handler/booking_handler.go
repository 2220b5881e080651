package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/atlascaucasus/service-booking/internal/application"
	"github.com/atlascaucasus/service-booking/internal/common/auth"
	"github.com/atlascaucasus/service-booking/internal/common/middleware"
	"github.com/atlascaucasus/service-booking/internal/common/response"
	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConfirmBookingRequest is the optional body of POST /:id/confirm.
type ConfirmBookingRequest struct {
	ProviderNotes string `json:"provider_notes" binding:"max=1000"`
}

// DeclineBookingRequest is the body of POST /:id/decline. The reason is checked by the
// lifecycle guard so a missing one reports MISSING_REQUIRED_FIELD.
type DeclineBookingRequest struct {
	DeclinedReason string `json:"declined_reason" binding:"max=1000"`
}

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service *application.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group. The mutating
// middlewares (CSRF, rate limiting) run only on state-changing routes.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager, mutating ...gin.HandlerFunc) {
	authMW := middleware.AuthMiddleware(jwtManager)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.GET("/:id/actions", h.AllowedActions)
	}

	writes := bookings.Group("")
	writes.Use(mutating...)
	{
		writes.POST("", middleware.RequireRole(auth.RoleUser), h.CreateBooking)
		writes.POST("/:id/confirm", h.ConfirmBooking)
		writes.POST("/:id/decline", h.DeclineBooking)
		writes.POST("/:id/complete", h.CompleteBooking)
		writes.POST("/:id/cancel", h.CancelBooking)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings?as=customer|provider&status=...
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	page, limit := parsePagination(c)
	result, err := h.service.ListMyBookings(c.Request.Context(), userID, c.Query("as"), c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, actorID, ok := bookingAndActor(c)
	if !ok {
		return
	}

	role, _ := middleware.GetUserRole(c)
	result, err := h.service.GetBooking(c.Request.Context(), bookingID, actorID, role == auth.RoleAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// AllowedActions handles GET /api/v1/bookings/:id/actions.
func (h *BookingHandler) AllowedActions(c *gin.Context) {
	bookingID, actorID, ok := bookingAndActor(c)
	if !ok {
		return
	}

	result, err := h.service.GetAllowedActions(c.Request.Context(), bookingID, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ConfirmBooking handles POST /api/v1/bookings/:id/confirm.
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	var req ConfirmBookingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.perform(c, bookingDomain.ActionConfirm, bookingDomain.Payload{ProviderNotes: req.ProviderNotes})
}

// DeclineBooking handles POST /api/v1/bookings/:id/decline.
func (h *BookingHandler) DeclineBooking(c *gin.Context) {
	var req DeclineBookingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.perform(c, bookingDomain.ActionDecline, bookingDomain.Payload{DeclinedReason: req.DeclinedReason})
}

// CompleteBooking handles POST /api/v1/bookings/:id/complete.
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.perform(c, bookingDomain.ActionComplete, bookingDomain.Payload{})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	h.perform(c, bookingDomain.ActionCancel, bookingDomain.Payload{})
}

func (h *BookingHandler) perform(c *gin.Context, action bookingDomain.Action, payload bookingDomain.Payload) {
	bookingID, actorID, ok := bookingAndActor(c)
	if !ok {
		return
	}

	result, err := h.service.PerformAction(c.Request.Context(), bookingID, actorID, action, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// bookingAndActor extracts the booking ID path parameter and the authenticated user.
func bookingAndActor(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return uuid.Nil, uuid.Nil, false
	}

	actorID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	return bookingID, actorID, true
}

// bindOptionalJSON binds a JSON body if one was sent.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request body")
		return false
	}
	return true
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}
