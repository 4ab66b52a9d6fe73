package handlers

import (
	"database/sql"
	"errors"
	"log"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/together/internal/auth"
	"github.com/yourorg/together/internal/middleware"
	"github.com/yourorg/together/internal/models"
)

// MinPasswordLength es el largo mínimo de password al registrarse
const MinPasswordLength = 8

// errDuplicateEntry es el código de MariaDB/MySQL para UNIQUE violado
const errDuplicateEntry = 1062

// AuthHandler maneja registro, login y vinculación de parejas
type AuthHandler struct {
	db     *sql.DB
	issuer *auth.Issuer
	cost   int // costo bcrypt
}

func NewAuthHandler(db *sql.DB, issuer *auth.Issuer) *AuthHandler {
	return &AuthHandler{db: db, issuer: issuer, cost: bcrypt.DefaultCost}
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid json"))
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		req.Name = req.Username
	}

	if req.Username == "" || req.Email == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail("username and email required"))
	}
	if !strings.Contains(req.Email, "@") {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail("invalid email"))
	}
	if len(req.Password) < MinPasswordLength {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail("password too short"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to secure password"))
	}

	res, err := h.db.ExecContext(c.UserContext(), `
		INSERT INTO users (username, email, name, profile_photo, password_hash)
		VALUES (?, ?, ?, ?, ?)
	`, req.Username, req.Email, req.Name, req.ProfilePhoto, string(hash))
	if err != nil {
		if isDuplicate(err) {
			return c.Status(fiber.StatusConflict).JSON(models.Fail("username or email already exists"))
		}
		log.Printf("❌ Error insertando usuario: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("db error"))
	}

	userID, _ := res.LastInsertId()
	log.Printf("✅ Usuario registrado: id=%d, username=%s", userID, req.Username)

	token, expiresAt, err := h.issuer.Issue(userID, req.Username)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to sign token"))
	}
	c.Set("Cache-Control", "no-store")
	return c.Status(fiber.StatusCreated).JSON(models.LoginResponse{
		Success:   true,
		Token:     token,
		User:      models.UserDTO{ID: userID, Username: req.Username, Name: req.Name, Email: req.Email},
		ExpiresAt: expiresAt,
	})
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid json"))
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || strings.TrimSpace(req.Password) == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail("username and password required"))
	}

	var (
		user      models.User
		partnerID sql.NullInt64
	)
	err := h.db.QueryRowContext(c.UserContext(),
		`SELECT id, username, name, email, partner_id, password_hash FROM users WHERE username = ?`,
		req.Username,
	).Scan(&user.ID, &user.Username, &user.Name, &user.Email, &partnerID, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("invalid credentials"))
		}
		log.Printf("❌ Error consultando usuario: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("db error"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("invalid credentials"))
	}

	token, expiresAt, err := h.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("failed to sign token"))
	}
	dto := models.UserDTO{ID: user.ID, Username: user.Username, Name: user.Name, Email: user.Email}
	if partnerID.Valid {
		dto.PartnerID = &partnerID.Int64
	}
	c.Set("Cache-Control", "no-store")
	return c.Status(fiber.StatusOK).JSON(models.LoginResponse{
		Success:   true,
		Token:     token,
		User:      dto,
		ExpiresAt: expiresAt,
	})
}

// Pair handles POST /api/partner/pair.
// Vincula al usuario autenticado con partner_username en ambos sentidos.
func (h *AuthHandler) Pair(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("authentication required"))
	}
	var req models.PairRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid json"))
	}
	req.PartnerUsername = strings.TrimSpace(req.PartnerUsername)
	if req.PartnerUsername == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail("partner_username required"))
	}

	ctx := c.UserContext()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("❌ Error iniciando transacción: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("db error"))
	}
	defer tx.Rollback()

	var (
		partnerID      int64
		partnerCurrent sql.NullInt64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, partner_id FROM users WHERE username = ? FOR UPDATE`, req.PartnerUsername,
	).Scan(&partnerID, &partnerCurrent)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(models.Fail("partner not found"))
	}
	if err != nil {
		log.Printf("❌ Error buscando pareja: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("db error"))
	}
	if partnerID == userID {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.Fail("cannot pair with yourself"))
	}
	if partnerCurrent.Valid && partnerCurrent.Int64 != userID {
		return c.Status(fiber.StatusConflict).JSON(models.Fail("partner already paired"))
	}

	var mine sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT partner_id FROM users WHERE id = ? FOR UPDATE`, userID,
	).Scan(&mine); err != nil {
		log.Printf("❌ Error leyendo usuario %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("db error"))
	}
	if mine.Valid && mine.Int64 != partnerID {
		return c.Status(fiber.StatusConflict).JSON(models.Fail("already paired"))
	}

	for _, link := range [][2]int64{{userID, partnerID}, {partnerID, userID}} {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET partner_id = ? WHERE id = ?`, link[1], link[0]); err != nil {
			log.Printf("❌ Error vinculando pareja: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("db error"))
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("❌ Error confirmando vinculación: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.Fail("db error"))
	}

	log.Printf("💞 Pareja vinculada: %d <-> %d", userID, partnerID)
	return c.JSON(fiber.Map{"success": true, "partner_id": partnerID})
}
