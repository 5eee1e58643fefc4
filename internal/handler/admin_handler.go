package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/firesafe-notify/internal/domain"
	"github.com/kursadbilgin/firesafe-notify/internal/observability"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"github.com/kursadbilgin/firesafe-notify/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type SchedulerRunner interface {
	RunOnce(ctx context.Context) (service.RunReport, error)
}

type UsageReader interface {
	Usage(ctx context.Context) (*domain.UsageCounter, error)
}

type DeliveryLister interface {
	List(ctx context.Context, params repository.DeliveryListParams) ([]domain.DeliveryRecord, int64, error)
}

type SettingsStore interface {
	Settings(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, settings domain.Settings) (domain.Settings, error)
}

type AdminDeps struct {
	Scheduler  SchedulerRunner
	Usage      UsageReader
	Deliveries DeliveryLister
	Settings   SettingsStore
}

type AdminHandler struct {
	scheduler  SchedulerRunner
	usage      UsageReader
	deliveries DeliveryLister
	settings   SettingsStore
}

func NewAdminHandler(deps AdminDeps) (*AdminHandler, error) {
	switch {
	case deps.Scheduler == nil:
		return nil, fmt.Errorf("scheduler is required")
	case deps.Usage == nil:
		return nil, fmt.Errorf("usage reader is required")
	case deps.Deliveries == nil:
		return nil, fmt.Errorf("delivery lister is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings store is required")
	}

	return &AdminHandler{
		scheduler:  deps.Scheduler,
		usage:      deps.Usage,
		deliveries: deps.Deliveries,
		settings:   deps.Settings,
	}, nil
}

func RegisterAdminRoutes(router fiber.Router, deps AdminDeps) error {
	h, err := NewAdminHandler(deps)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/scheduler/run", h.RunScheduler)
	v1.Get("/usage/today", h.GetUsageToday)
	v1.Get("/deliveries", h.ListDeliveries)
	v1.Get("/settings", h.GetSettings)
	v1.Put("/settings", h.UpdateSettings)

	return nil
}

type usageResponse struct {
	Date        string         `json:"date"`
	TotalSent   int            `json:"totalSent"`
	PerCategory map[string]int `json:"perCategory"`
	DailyLimit  int            `json:"dailyLimit"`
	Remaining   *int           `json:"remaining,omitempty"`
}

type deliveryResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	PhoneNumber        string     `json:"phoneNumber"`
	Message            string     `json:"message"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	ProviderResponse   *string    `json:"providerResponse,omitempty"`
	ProviderStatusCode *int       `json:"providerStatusCode,omitempty"`
	SentAt             *time.Time `json:"sentAt,omitempty"`
	ErrorMessage       *string    `json:"errorMessage,omitempty"`
	RelatedEntityType  *string    `json:"relatedEntityType,omitempty"`
	RelatedEntityID    *string    `json:"relatedEntityId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type settingsPayload struct {
	Enabled                  bool   `json:"enabled"`
	SenderID                 string `json:"senderId"`
	DailyLimit               int    `json:"dailyLimit"`
	ComplianceThresholdDays  int    `json:"complianceThresholdDays"`
	MaintenanceThresholdDays int    `json:"maintenanceThresholdDays"`
}

// RunScheduler runs both equipment scans now and returns their counts.
func (h *AdminHandler) RunScheduler(c *fiber.Ctx) error {
	ctx := requestContext(c, observability.TriggerAPI)
	report, err := h.scheduler.RunOnce(ctx)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *AdminHandler) GetUsageToday(c *fiber.Ctx) error {
	ctx := c.UserContext()

	usage, err := h.usage.Usage(ctx)
	if err != nil {
		return toHTTPError(err)
	}
	settings, err := h.settings.Settings(ctx)
	if err != nil {
		return toHTTPError(err)
	}

	resp := usageResponse{
		Date:        usage.Date,
		TotalSent:   usage.TotalSent,
		PerCategory: make(map[string]int, len(usage.PerCategory)),
		DailyLimit:  settings.DailyLimit,
	}
	for category, count := range usage.PerCategory {
		resp.PerCategory[category.String()] = count
	}
	if settings.DailyLimit > 0 {
		remaining := max(settings.DailyLimit-usage.TotalSent, 0)
		resp.Remaining = &remaining
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *AdminHandler) ListDeliveries(c *fiber.Ctx) error {
	params, err := parseDeliveryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.deliveries.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(records))
	for i := range records {
		data = append(data, toDeliveryResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.settings.Settings(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toSettingsPayload(settings))
}

func (h *AdminHandler) UpdateSettings(c *fiber.Ctx) error {
	var body settingsPayload
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	saved, err := h.settings.Save(c.UserContext(), domain.Settings{
		Enabled:                  body.Enabled,
		SenderID:                 strings.TrimSpace(body.SenderID),
		DailyLimit:               body.DailyLimit,
		ComplianceThresholdDays:  body.ComplianceThresholdDays,
		MaintenanceThresholdDays: body.MaintenanceThresholdDays,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toSettingsPayload(saved))
}

func parseDeliveryListParams(c *fiber.Ctx) (repository.DeliveryListParams, error) {
	params := repository.DeliveryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if userID := strings.TrimSpace(c.Query("userId")); userID != "" {
		params.UserID = &userID
	}

	if rawCategory := strings.TrimSpace(c.Query("category")); rawCategory != "" {
		category, err := domain.ParseCategoryFromString(rawCategory)
		if err != nil {
			return repository.DeliveryListParams{}, err
		}
		params.Category = &category
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseDeliveryStatusFromString(rawStatus)
		if err != nil {
			return repository.DeliveryListParams{}, err
		}
		params.Status = &status
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.DeliveryListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.DeliveryListParams{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: to must not be before from", domain.ErrValidation)
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toDeliveryResponse(r *domain.DeliveryRecord) deliveryResponse {
	return deliveryResponse{
		ID:                 r.ID,
		UserID:             r.UserID,
		PhoneNumber:        r.PhoneNumber,
		Message:            r.Message,
		Category:           r.Category.String(),
		Status:             r.Status.String(),
		ProviderResponse:   r.ProviderResponse,
		ProviderStatusCode: r.ProviderStatusCode,
		SentAt:             r.SentAt,
		ErrorMessage:       r.ErrorMessage,
		RelatedEntityType:  r.RelatedEntityType,
		RelatedEntityID:    r.RelatedEntityID,
		CreatedAt:          r.CreatedAt,
	}
}

func toSettingsPayload(s domain.Settings) settingsPayload {
	return settingsPayload{
		Enabled:                  s.Enabled,
		SenderID:                 s.SenderID,
		DailyLimit:               s.DailyLimit,
		ComplianceThresholdDays:  s.ComplianceThresholdDays,
		MaintenanceThresholdDays: s.MaintenanceThresholdDays,
	}
}
