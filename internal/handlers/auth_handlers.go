package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/veloxcart/veloxcart/internal/middleware"
	"github.com/veloxcart/veloxcart/internal/models"
	"github.com/veloxcart/veloxcart/internal/service"
)

// AuthFlow is the slice of AuthService the HTTP layer depends on.
type AuthFlow interface {
	Register(ctx context.Context, input service.RegisterInput) (*models.Account, *models.SessionToken, error)
	Login(ctx context.Context, username, password string) (string, error)
	SendOTP(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, input service.VerifyOTPInput) (*models.Account, *models.SessionToken, error)
	AdminLogin(ctx context.Context, username, password string) (*models.Account, *models.SessionToken, error)
	GetAccount(ctx context.Context, username string) (*models.Account, error)
	DeleteAccount(ctx context.Context, username string) error
}

type AuthHandlers struct {
	auth   AuthFlow
	logger *logrus.Logger
}

func NewAuthHandlers(auth AuthFlow, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		auth:   auth,
		logger: logger,
	}
}

type userResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        string `json:"role"`
}

func newUserResponse(account *models.Account) userResponse {
	return userResponse{
		ID:          account.Username,
		Name:        account.Name,
		Username:    account.Username,
		Email:       account.Email,
		PhoneNumber: account.PhoneNumber,
		Role:        account.Role,
	}
}

type registerRequest struct {
	Name        string `json:"name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

type tokenResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to decode register request")
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Username == "" || req.Email == "" || req.PhoneNumber == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	account, token, err := h.auth.Register(r.Context(), service.RegisterInput{
		Name:        req.Name,
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, tokenResponse{
		Success: true,
		Message: "User registered successfully",
		Token:   token.Token,
		User:    newUserResponse(account),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	emailAddr, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Email:   emailAddr,
		Message: "OTP sent to your registered email",
	})
}

type verifyOTPRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	OTP      string `json:"otp"`
}

func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if (req.Username == "" && req.Email == "") || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "Username and OTP required")
		return
	}

	account, token, err := h.auth.VerifyOTP(r.Context(), service.VerifyOTPInput{
		Username: req.Username,
		Email:    req.Email,
		Code:     req.OTP,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{
		Success: true,
		Message: "Logged in successfully via OTP",
		Token:   token.Token,
		User:    newUserResponse(account),
	})
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type sendOTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email"`
}

func (h *AuthHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "Email is required")
		return
	}

	emailAddr, err := h.auth.SendOTP(r.Context(), req.Email)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sendOTPResponse{
		Success: true,
		Message: "OTP sent to your registered email",
		Email:   emailAddr,
	})
}

func (h *AuthHandlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	account, token, err := h.auth.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{
		Success: true,
		Message: "Admin logged in successfully",
		Token:   token.Token,
		User:    newUserResponse(account),
	})
}

type meResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	account, err := h.auth.GetAccount(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, meResponse{
		Success: true,
		User:    newUserResponse(account),
	})
}

// DeleteAccount removes the account named in the path. Only the owning
// account may delete itself: the token subject must match the path id.
func (h *AuthHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	id := mux.Vars(r)["id"]
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Account id is required")
		return
	}

	if claims.Subject != id {
		respondWithError(w, http.StatusUnauthorized, "You can only delete your own account")
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), id); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Account deleted",
	})
}
