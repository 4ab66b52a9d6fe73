package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/yourorg/together/internal/cache"
	"github.com/yourorg/together/internal/middleware"
	"github.com/yourorg/together/internal/models"
	"github.com/yourorg/together/internal/validation"
)

// DefaultOnlineWindow es cuánto dura "online" después del último reporte
const DefaultOnlineWindow = 2 * time.Minute

// Publisher empuja eventos en vivo a las conexiones de un usuario
type Publisher interface {
	Publish(userID int64, ev models.LiveEvent)
}

// LocationShareHandler implementa el gateway de sesiones de ubicación
type LocationShareHandler struct {
	db           *sql.DB
	presence     cache.PresenceStore
	live         Publisher
	now          func() time.Time
	onlineWindow time.Duration
}

func NewLocationShareHandler(db *sql.DB, presence cache.PresenceStore, live Publisher) *LocationShareHandler {
	return &LocationShareHandler{
		db:           db,
		presence:     presence,
		live:         live,
		now:          func() time.Time { return time.Now().UTC() },
		onlineWindow: DefaultOnlineWindow,
	}
}

const shareColumns = `id, user_id, latitude, longitude, accuracy, duration_minutes,
	created_at, expires_at, stopped_at, is_active, last_updated_at`

func scanShare(row interface{ Scan(...any) error }) (models.LocationShare, error) {
	var s models.LocationShare
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Latitude,
		&s.Longitude,
		&s.Accuracy,
		&s.DurationMinutes,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.StoppedAt,
		&s.IsActive,
		&s.LastUpdatedAt,
	)
	return s, err
}

// activeShare retorna la sesión vigente del usuario o sql.ErrNoRows
func (h *LocationShareHandler) activeShare(ctx context.Context, userID int64, now time.Time) (models.LocationShare, error) {
	return scanShare(h.db.QueryRowContext(ctx, `
		SELECT `+shareColumns+`
		FROM location_shares
		WHERE user_id = ? AND is_active = true AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, now))
}

// partnerOf retorna el id de la pareja vinculada, si existe
func (h *LocationShareHandler) partnerOf(ctx context.Context, userID int64) (int64, bool, error) {
	var partnerID sql.NullInt64
	err := h.db.QueryRowContext(ctx, `SELECT partner_id FROM users WHERE id = ?`, userID).Scan(&partnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return partnerID.Int64, partnerID.Valid, nil
}

// notifyPartner avisa a la pareja por el feed en vivo. Best effort.
func (h *LocationShareHandler) notifyPartner(ctx context.Context, userID int64, ev models.LiveEvent) {
	if h.live == nil {
		return
	}
	partnerID, ok, err := h.partnerOf(ctx, userID)
	if err != nil {
		log.Printf("⚠️  No se pudo obtener la pareja de user_id=%d: %v", userID, err)
		return
	}
	if ok {
		h.live.Publish(partnerID, ev)
	}
}

func (h *LocationShareHandler) touchPresence(ctx context.Context, userID int64, pos *models.Position, sharing bool, now time.Time) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Set(ctx, userID, cache.Presence{Position: pos, Sharing: sharing, SeenAt: now}); err != nil {
		log.Printf("⚠️  Error guardando presencia de user_id=%d: %v", userID, err)
	}
}

// Start handles POST /api/location/start.
// Una sesión nueva reemplaza a la anterior si quedó activa.
func (h *LocationShareHandler) Start(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("authentication required"))
	}
	var req models.StartSharingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid json"))
	}
	if err := validation.ValidateDuration(req.Duration); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail(err.Error()))
	}
	if req.InitialLocation == nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail("initialLocation required"))
	}
	if err := validation.ValidatePosition(*req.InitialLocation); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail(err.Error()))
	}

	ctx := c.UserContext()
	now := h.now()
	pos := *req.InitialLocation
	pos.CapturedAt = now
	share := models.LocationShare{
		ID:              uuid.New().String(),
		UserID:          userID,
		Latitude:        pos.Latitude,
		Longitude:       pos.Longitude,
		Accuracy:        pos.Accuracy,
		DurationMinutes: req.Duration,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(req.Duration) * time.Minute),
		IsActive:        true,
		LastUpdatedAt:   now,
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("❌ Error iniciando transacción: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to start sharing"))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE location_shares
		SET is_active = false, stopped_at = ?, last_updated_at = ?
		WHERE user_id = ? AND is_active = true
	`, now, now, userID); err != nil {
		log.Printf("❌ Error cerrando sesión previa de user_id=%d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to start sharing"))
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO location_shares (
			id, user_id, latitude, longitude, accuracy, duration_minutes,
			created_at, expires_at, is_active, last_updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, true, ?)
	`, share.ID, share.UserID, share.Latitude, share.Longitude, share.Accuracy,
		share.DurationMinutes, share.CreatedAt, share.ExpiresAt, share.LastUpdatedAt); err != nil {
		log.Printf("❌ Error creando sesión de user_id=%d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to start sharing"))
	}
	if err := tx.Commit(); err != nil {
		log.Printf("❌ Error confirmando sesión: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to start sharing"))
	}

	sessionsStarted.Inc()
	log.Printf("📍 Sesión %s iniciada: user_id=%d, %d min", share.ID, userID, req.Duration)

	h.touchPresence(ctx, userID, &pos, true, now)
	h.notifyPartner(ctx, userID, models.LiveEvent{Type: models.LiveSharingStarted, UserID: userID, Position: &pos, At: now})

	return c.Status(fiber.StatusCreated).JSON(models.StartSharingResponse{
		Envelope: models.Envelope{Success: true},
		Session: &models.SessionInfo{
			ID:            share.ID,
			StartTime:     share.CreatedAt,
			Duration:      share.DurationMinutes,
			TimeRemaining: share.TimeRemaining(now),
		},
	})
}

// Stop handles POST /api/location/stop.
// Detener sin sesión activa no es error: puede haber expirado en el servidor.
func (h *LocationShareHandler) Stop(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("authentication required"))
	}
	ctx := c.UserContext()
	now := h.now()

	result, err := h.db.ExecContext(ctx, `
		UPDATE location_shares
		SET is_active = false, stopped_at = ?, last_updated_at = ?
		WHERE user_id = ? AND is_active = true
	`, now, now, userID)
	if err != nil {
		log.Printf("❌ Error deteniendo sesión de user_id=%d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to stop sharing"))
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		sessionsStopped.WithLabelValues("user").Inc()
		log.Printf("🛑 Sesión detenida: user_id=%d", userID)
		h.notifyPartner(ctx, userID, models.LiveEvent{Type: models.LiveSharingStopped, UserID: userID, At: now})
	}
	h.touchPresence(ctx, userID, nil, false, now)

	return c.JSON(models.Envelope{Success: true, Message: "sharing stopped"})
}

// Update handles POST /api/location/update.
func (h *LocationShareHandler) Update(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("authentication required"))
	}
	var pos models.Position
	if err := c.BodyParser(&pos); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid json"))
	}
	if err := validation.ValidatePosition(pos); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail(err.Error()))
	}

	ctx := c.UserContext()
	now := h.now()
	if pos.CapturedAt.IsZero() || pos.CapturedAt.After(now) {
		pos.CapturedAt = now
	}

	result, err := h.db.ExecContext(ctx, `
		UPDATE location_shares
		SET latitude = ?, longitude = ?, accuracy = ?, last_updated_at = ?
		WHERE user_id = ? AND is_active = true AND expires_at > ?
	`, pos.Latitude, pos.Longitude, pos.Accuracy, pos.CapturedAt, userID, now)
	if err != nil {
		log.Printf("❌ Error actualizando ubicación de user_id=%d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to update location"))
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(models.Fail("no active sharing session"))
	}

	coarse := pos.IsCoarse()
	locationUpdates.WithLabelValues(boolLabel(coarse)).Inc()

	h.touchPresence(ctx, userID, &pos, true, now)
	h.notifyPartner(ctx, userID, models.LiveEvent{Type: models.LiveLocation, UserID: userID, Position: &pos, At: now})

	return c.JSON(fiber.Map{"success": true, "coarse": coarse})
}

// Status handles GET /api/location/status.
func (h *LocationShareHandler) Status(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("authentication required"))
	}
	ctx := c.UserContext()
	now := h.now()

	resp := models.StatusResponse{
		Envelope: models.Envelope{Success: true},
		Status:   &models.SharingStatus{},
	}

	share, err := h.activeShare(ctx, userID, now)
	switch {
	case err == nil:
		start := share.CreatedAt
		pos := share.Position()
		resp.Status = &models.SharingStatus{
			ID:            share.ID,
			IsSharing:     true,
			StartTime:     &start,
			Duration:      share.DurationMinutes,
			TimeRemaining: share.TimeRemaining(now),
		}
		resp.UserLocation = &pos
	case errors.Is(err, sql.ErrNoRows):
	default:
		log.Printf("❌ Error consultando estado de user_id=%d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to fetch status"))
	}

	partnerID, paired, err := h.partnerOf(ctx, userID)
	if err != nil {
		log.Printf("❌ Error consultando pareja de user_id=%d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to fetch status"))
	}
	if paired {
		partnerShare, err := h.activeShare(ctx, partnerID, now)
		switch {
		case err == nil:
			pos := partnerShare.Position()
			resp.PartnerLocation = &pos
		case errors.Is(err, sql.ErrNoRows):
		default:
			log.Printf("⚠️  Error consultando ubicación de la pareja %d: %v", partnerID, err)
		}
	}

	return c.JSON(resp)
}

// PartnerInfo handles GET /api/partner/info.
func (h *LocationShareHandler) PartnerInfo(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("authentication required"))
	}
	ctx := c.UserContext()
	now := h.now()

	var partner models.PartnerPresence
	err := h.db.QueryRowContext(ctx, `
		SELECT p.id, p.username, p.profile_photo
		FROM users u
		JOIN users p ON p.id = u.partner_id
		WHERE u.id = ?
	`, userID).Scan(&partner.ID, &partner.Username, &partner.ProfilePhoto)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(models.Fail("no partner linked"))
	}
	if err != nil {
		log.Printf("❌ Error consultando pareja de user_id=%d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to fetch partner"))
	}

	if h.presence != nil {
		p, found, err := h.presence.Get(ctx, partner.ID)
		if err != nil {
			log.Printf("⚠️  Error leyendo presencia de %d: %v", partner.ID, err)
		} else if found {
			partner.Online = p.Online(now, h.onlineWindow)
		}
	}

	share, err := h.activeShare(ctx, partner.ID, now)
	switch {
	case err == nil:
		pos := share.Position()
		partner.LastLocation = &pos
		// una sesión activa implica que reportó hace poco
		partner.Online = partner.Online || now.Sub(share.LastUpdatedAt) <= h.onlineWindow
	case errors.Is(err, sql.ErrNoRows):
	default:
		log.Printf("⚠️  Error consultando ubicación de la pareja %d: %v", partner.ID, err)
	}

	return c.JSON(models.PartnerResponse{
		Envelope: models.Envelope{Success: true},
		Partner:  &partner,
	})
}

// ExpireSessions marca inactivas las sesiones vencidas y avisa a las parejas.
// La llama periódicamente cmd/server.
func (h *LocationShareHandler) ExpireSessions(ctx context.Context) (int, error) {
	now := h.now()
	rows, err := h.db.QueryContext(ctx, `
		SELECT user_id FROM location_shares
		WHERE is_active = true AND expires_at <= ?
	`, now)
	if err != nil {
		return 0, err
	}
	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		users = append(users, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	if _, err := h.db.ExecContext(ctx, `
		UPDATE location_shares
		SET is_active = false, stopped_at = expires_at
		WHERE is_active = true AND expires_at <= ?
	`, now); err != nil {
		return 0, err
	}

	for _, userID := range users {
		sessionsStopped.WithLabelValues("expired").Inc()
		h.touchPresence(ctx, userID, nil, false, now)
		h.notifyPartner(ctx, userID, models.LiveEvent{Type: models.LiveSharingStopped, UserID: userID, At: now})
	}
	log.Printf("⏰ %d sesiones expiradas", len(users))
	return len(users), nil
}

// RunExpiry ejecuta ExpireSessions cada interval hasta que ctx termine
func (h *LocationShareHandler) RunExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.ExpireSessions(ctx); err != nil && ctx.Err() == nil {
				log.Printf("⚠️  Error expirando sesiones: %v", err)
			}
		}
	}
}
