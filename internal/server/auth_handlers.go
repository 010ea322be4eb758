package server

import (
	"time"

	"diary/internal/middleware"
	"diary/internal/models"
	"diary/internal/service"

	"github.com/gofiber/fiber/v2"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register handles POST /api/register
// @Summary Register
// @Description Create an account and open a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,password=string} true "Credentials"
// @Success 201 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, invalidBody())
	}

	session, err := s.authService.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.sendSession(c, fiber.StatusCreated, session)
}

// Login handles POST /api/login
// @Summary Login
// @Description Authenticate and open a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,password=string} true "Credentials"
// @Success 200 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, invalidBody())
	}

	session, err := s.authService.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.sendSession(c, fiber.StatusOK, session)
}

// Logout handles POST /api/logout
// @Summary Logout
// @Description Revoke the current session token and clear the session cookie
// @Tags auth
// @Produce json
// @Success 200 {object} object{message=string}
// @Router /logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.authService.Logout(c.UserContext(), middleware.CurrentIdentity(c)); err != nil {
		return s.respondError(c, err)
	}
	s.clearSessionCookie(c)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// CurrentUser handles GET /api/user
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /user [get]
func (s *Server) CurrentUser(c *fiber.Ctx) error {
	user, err := s.authService.CurrentUser(c.UserContext(), middleware.CurrentIdentity(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(user)
}

// Refresh handles POST /api/refresh
// @Summary Refresh session
// @Description Issue a new session token and revoke the one presented
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{token=string,user=models.User}
// @Failure 401 {object} models.ErrorResponse
// @Router /refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	session, err := s.authService.Refresh(c.UserContext(), middleware.CurrentIdentity(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return s.sendSession(c, fiber.StatusOK, session)
}

func (s *Server) sendSession(c *fiber.Ctx, status int, session *service.Session) error {
	c.Cookie(&fiber.Cookie{
		Name:     s.config.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.Identity.ExpiresAt,
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(status).JSON(sessionResponse{User: session.User, Token: session.Token})
}

func (s *Server) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.config.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
