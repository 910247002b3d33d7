package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// SheetTaskPayload is queued for the spreadsheet mirror.
type SheetTaskPayload struct {
	ReservationID int64  `json:"reservation_id"`
	State         string `json:"state"`
}

// BookingService admits reservations and drives their state machine. It
// keeps no mutable state; overlap admission is enforced by the store.
type BookingService struct {
	catalog      domain.ResourceCatalog
	reservations domain.ReservationStore
	notifier     domain.Notifier
	eventBus     domain.EventPublisher
	tasks        domain.TaskQueue
	openHour     int
	closeHour    int
	minHours     int
	maxHours     int
	loc          *time.Location
	now          func() time.Time
	logger       *zerolog.Logger
}

// NewBookingService wires the engine. notifier, eventBus and tasks are
// optional and may be nil.
func NewBookingService(
	catalog domain.ResourceCatalog,
	reservations domain.ReservationStore,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	tasks domain.TaskQueue,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.OpenHour == 0 && cfg.CloseHour == 0 {
		cfg.OpenHour, cfg.CloseHour = models.DefaultOpenHour, models.DefaultCloseHour
	}
	if cfg.MinHours == 0 {
		cfg.MinHours = models.DefaultMinBookingHours
	}
	if cfg.MaxHours == 0 {
		cfg.MaxHours = models.DefaultMaxBookingHours
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking_service").Logger()

	return &BookingService{
		catalog:      catalog,
		reservations: reservations,
		notifier:     notifier,
		eventBus:     eventBus,
		tasks:        tasks,
		openHour:     cfg.OpenHour,
		closeHour:    cfg.CloseHour,
		minHours:     cfg.MinHours,
		maxHours:     cfg.MaxHours,
		loc:          cfg.Location(),
		now:          time.Now,
		logger:       &l,
	}
}

// Location is the zone business hours are evaluated in.
func (s *BookingService) Location() *time.Location {
	return s.loc
}

// businessDay returns opening and closing time on the calendar date of t.
func (s *BookingService) businessDay(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, s.openHour, 0, 0, 0, s.loc), time.Date(y, m, d, s.closeHour, 0, 0, 0, s.loc)
}

// CreateBooking admits a pending reservation. Checks run in a fixed order
// and the first failure is returned.
func (s *BookingService) CreateBooking(ctx context.Context, userID, resourceID int64, start time.Time, durationHours int) (*models.Reservation, error) {
	resource, err := s.catalog.GetResource(ctx, resourceID)
	if err != nil {
		return nil, s.reject(err)
	}

	if durationHours < s.minHours || durationHours > s.maxHours {
		return nil, s.reject(domain.ErrInvalidDuration.WithMessage("duration must be between %d and %d hours", s.minHours, s.maxHours))
	}

	// The store keeps whole seconds.
	start = start.Truncate(time.Second)
	if !start.After(s.now()) {
		return nil, s.reject(domain.ErrPastBooking)
	}

	end := start.Add(time.Duration(durationHours) * time.Hour)
	dayStart, dayEnd := s.businessDay(start)
	if start.Before(dayStart) || end.After(dayEnd) {
		return nil, s.reject(domain.ErrOutsideBusinessHours.WithMessage("booking must be between %02d:00 and %02d:00", s.openHour, s.closeHour))
	}

	r := &models.Reservation{
		UserID:     userID,
		ResourceID: resourceID,
		StartTime:  start.UTC(),
		EndTime:    end.UTC(),
		State:      models.ReservationPending,
	}
	if err := s.reservations.CreateReservation(ctx, r); err != nil {
		return nil, s.reject(err)
	}

	metrics.IncReservationCreated(resource.Name)
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("user_id", userID).
		Int64("resource_id", resourceID).
		Time("start", r.StartTime).
		Int("hours", durationHours).
		Msg("reservation created")

	s.publishReservation(events.EventReservationCreated, r, userID)
	s.enqueueSheetSync(ctx, r)

	return r, nil
}

func (s *BookingService) reject(err error) error {
	if reason := domain.ReasonOf(err); reason != "" {
		metrics.IncBookingRejected(reason)
		return err
	}
	return fmt.Errorf("create reservation: %w", err)
}

// CancelBooking moves a future reservation to cancelled. Cancelling an
// already cancelled reservation is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, reservationID, requestingUserID int64, isAdmin bool) error {
	r, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	if !isAdmin && r.UserID != requestingUserID {
		return domain.ErrForbidden.WithMessage("reservation %d belongs to another user", reservationID)
	}

	if !r.StartTime.After(s.now()) {
		return domain.ErrCancelPast
	}

	if r.IsCancelled() {
		return nil
	}

	changed, err := s.reservations.UpdateReservationState(ctx, r.ID,
		[]string{models.ReservationPending, models.ReservationPaid}, models.ReservationCancelled)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	if !changed {
		// A concurrent cancel won; it owns the side effects.
		return nil
	}
	r.State = models.ReservationCancelled

	metrics.IncReservationCancelled()
	s.logger.Info().Int64("reservation_id", r.ID).Int64("by_user", requestingUserID).Bool("admin", isAdmin).Msg("reservation cancelled")

	if s.notifier != nil {
		s.notifier.SendCancellationNotice(ctx, r.UserID, s.notificationData(ctx, r))
	}
	s.publishReservation(events.EventReservationCancelled, r, requestingUserID)
	s.enqueueSheetSync(ctx, r)

	return nil
}

// GetAvailability lists the hourly slots of one business day. It is a read
// model only; CreateBooking re-checks admission.
func (s *BookingService) GetAvailability(ctx context.Context, resourceID int64, date time.Time) ([]models.Slot, error) {
	if _, err := s.catalog.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}

	dayStart, dayEnd := s.businessDay(date)
	busy, err := s.reservations.FindOverlapping(ctx, resourceID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}

	now := s.now()
	slots := make([]models.Slot, 0, s.closeHour-s.openHour)
	for slotStart := dayStart; slotStart.Before(dayEnd); slotStart = slotStart.Add(time.Hour) {
		slotEnd := slotStart.Add(time.Hour)
		available := slotStart.After(now)
		for _, r := range busy {
			if r.Overlaps(slotStart, slotEnd) {
				available = false
				break
			}
		}
		slots = append(slots, models.Slot{
			Start:     slotStart.Format("15:04"),
			End:       slotEnd.Format("15:04"),
			Available: available,
		})
	}
	return slots, nil
}

func (s *BookingService) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.reservations.GetReservation(ctx, id)
}

func (s *BookingService) ListUserReservations(ctx context.Context, userID int64) ([]*models.ReservationDetail, error) {
	return s.reservations.ListUserReservations(ctx, userID)
}

func (s *BookingService) ListAllReservations(ctx context.Context) ([]*models.ReservationDetail, error) {
	return s.reservations.ListReservationsDetailed(ctx)
}

func (s *BookingService) ListResources(ctx context.Context) ([]*models.Resource, error) {
	return s.catalog.ListResources(ctx)
}

func (s *BookingService) notificationData(ctx context.Context, r *models.Reservation) models.NotificationData {
	data := models.NotificationData{
		ReservationID: r.ID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
	}
	res, err := s.catalog.GetResource(ctx, r.ResourceID)
	if err == nil {
		data.ResourceName = res.Name
	} else if !errors.Is(err, domain.ErrResourceNotFound) {
		s.logger.Warn().Err(err).Int64("resource_id", r.ResourceID).Msg("resource lookup for notice failed")
	}
	return data
}

func (s *BookingService) publishReservation(eventType string, r *models.Reservation, changedBy int64) {
	if s.eventBus == nil {
		return
	}
	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		UserID:        r.UserID,
		ResourceID:    r.ResourceID,
		State:         r.State,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		ChangedBy:     changedBy,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSheetSync(ctx context.Context, r *models.Reservation) {
	enqueueSheetSync(ctx, s.tasks, r, s.logger)
}

func enqueueSheetSync(ctx context.Context, tasks domain.TaskQueue, r *models.Reservation, logger *zerolog.Logger) {
	if tasks == nil {
		return
	}
	payload := SheetTaskPayload{ReservationID: r.ID, State: r.State}
	if err := tasks.Enqueue(ctx, models.TaskSheetUpsert, r.ID, payload); err != nil {
		logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("sheet sync enqueue error")
	}
}
