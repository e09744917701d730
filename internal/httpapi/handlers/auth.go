package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/headline-ai/headline-server/internal/auth"
	"github.com/headline-ai/headline-server/internal/common"
	"github.com/headline-ai/headline-server/internal/models"
)

const (
	loginFailureWindow = 15 * time.Minute
	loginFailureLimit  = 10
)

type signupReq struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Detail(c, http.StatusBadRequest, "username, email and password required")
		return
	}

	var count int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		common.Detail(c, http.StatusInternalServerError, "database error")
		return
	}
	if count > 0 {
		common.Detail(c, http.StatusBadRequest, "Email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Detail(c, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := models.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// unique index race on email
			common.Detail(c, http.StatusBadRequest, "Email already registered")
			return
		}
		common.Detail(c, http.StatusInternalServerError, "database error")
		return
	}

	c.JSON(http.StatusOK, toUserResponse(&user))
}

// Login authenticates with form fields. The email travels in the username
// field, OAuth2 password-flow style.
func (h *Handler) Login(c *gin.Context) {
	email := c.PostForm("username")
	password := c.PostForm("password")
	if email == "" || password == "" {
		common.Detail(c, http.StatusBadRequest, "username and password required")
		return
	}

	if h.Redis != nil {
		if n, err := h.Redis.IncrLoginFailures(c.Request.Context(), email, loginFailureWindow); err == nil && n > loginFailureLimit {
			common.Detail(c, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	var user models.User
	err := h.DB.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !auth.VerifyPassword(password, user.PasswordHash)) {
		common.Detail(c, http.StatusBadRequest, "Invalid credentials")
		return
	}
	if err != nil {
		common.Detail(c, http.StatusInternalServerError, "database error")
		return
	}

	if h.Redis != nil {
		_ = h.Redis.ResetLoginFailures(c.Request.Context(), email)
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.JWTExpiry)
	if err != nil {
		common.Detail(c, http.StatusInternalServerError, "failed to sign token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// RefreshToken reissues a fresh token from a valid one.
func (h *Handler) RefreshToken(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Detail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	token, err := auth.SignJWT(uid, h.Cfg.JWTSecret, h.Cfg.JWTExpiry)
	if err != nil {
		common.Detail(c, http.StatusInternalServerError, "failed to sign token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User
	if err := h.DB.Order("id ASC").Find(&users).Error; err != nil {
		common.Detail(c, http.StatusInternalServerError, "database error")
		return
	}
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.lookupUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.lookupUser(c)
	if !ok {
		return
	}

	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Detail(c, http.StatusBadRequest, "username, email and password required")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Detail(c, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user.Username = req.Username
	user.Email = req.Email
	user.PasswordHash = hash
	if err := h.DB.Save(user).Error; err != nil {
		common.Detail(c, http.StatusBadRequest, "failed to update user")
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *Handler) DeleteUser(c *gin.Context) {
	user, ok := h.lookupUser(c)
	if !ok {
		return
	}
	if err := h.DB.Delete(user).Error; err != nil {
		common.Detail(c, http.StatusInternalServerError, "failed to delete user")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) lookupUser(c *gin.Context) (*models.User, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Detail(c, http.StatusBadRequest, "invalid user id")
		return nil, false
	}
	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Detail(c, http.StatusNotFound, "User not found")
			return nil, false
		}
		common.Detail(c, http.StatusInternalServerError, "database error")
		return nil, false
	}
	return &user, true
}
