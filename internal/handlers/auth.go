package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"donate-app/internal/models"
)

// AuthHandler holds the database connection and the JWT signing secret.
type AuthHandler struct {
	DB        *sqlx.DB
	JwtSecret string
}

func NewAuthHandler(db *sqlx.DB, jwtSecret string) *AuthHandler {
	return &AuthHandler{DB: db, JwtSecret: jwtSecret}
}

// RegisterRequest defines the JSON struct we expect from the client
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
}

// Register creates a donor account. Gin's 'ShouldBindJSON' uses the
// 'binding' tags for validation; the password is only ever stored hashed.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Println("Password hashing error:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error, please try again."})
		return
	}

	var newUser models.User
	query := `INSERT INTO users (email, password_hash, display_name)
	          VALUES ($1, $2, $3)
	          RETURNING id, email, display_name, created_at, updated_at`
	err = h.DB.Get(&newUser, query, req.Email, string(passwordHash), req.DisplayName)
	if err != nil {
		log.Println("Failed to insert new user:", err)
		// This will fail if the email is already taken
		c.JSON(http.StatusConflict, gin.H{"error": "Email may already be in use."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "User created successfully.",
		"user_id":      newUser.ID,
		"email":        newUser.Email,
		"display_name": newUser.DisplayName,
	})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) createJWT(user models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour * 24 * 7).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(h.JwtSecret))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	var user models.User
	query := `SELECT id, email, password_hash, display_name FROM users WHERE email = $1`
	err := h.DB.Get(&user, query, req.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
			return
		}
		log.Println("Database error on login:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	// Compare stored passwordHash with the user entered password
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
		return
	}

	tokenString, err := h.createJWT(user)
	if err != nil {
		log.Println("Failed to create JWT:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Login successful.", "token": tokenString})
}

// GetMe returns the authenticated user's profile.
func (h *AuthHandler) GetMe(c *gin.Context) {
	userIDAny, exists := c.Get("userID")
	if !exists {
		log.Println("UserID not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error: UserID not found"})
		return
	}
	userID, ok := userIDAny.(int)
	if !ok {
		log.Println("UserID in context is not an int")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error: UserID invalid format"})
		return
	}

	var user models.User
	query := `SELECT id, email, display_name, created_at, updated_at FROM users WHERE id = $1`
	if err := h.DB.Get(&user, query, userID); err != nil {
		log.Println("Failed to get user profile:", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"created_at":   user.CreatedAt,
	})
}
