// Package auth provides authentication and authorization services
package auth

import (
	"context"
	"fmt"

	"encore.app/pkg/authn"
	"encore.app/pkg/httpx"
	"encore.app/pkg/ratelimit"
	"encore.app/pkg/session"
	"encore.app/svc/notifications"
)

// Secrets configuration
var secrets struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
}

// Service represents the authentication service
//
//encore:service
type Service struct {
	repo              *Repository
	jwtManager        *authn.JWTManager
	sessionManager    *session.SessionManager
	loginRateLimit    *ratelimit.RateLimiter
	registerRateLimit *ratelimit.RateLimiter
}

// Initialize the authentication service
func initService() (*Service, error) {
	repo := NewRepository()

	jwtManager := authn.NewJWTManager(secrets.JWTAccessSecret, secrets.JWTRefreshSecret)

	sessionManager := session.NewSessionManager(session.ProductionSessionConfig)

	loginRateLimit := ratelimit.NewRateLimiter(ratelimit.LoginRateLimit)
	registerRateLimit := ratelimit.NewRateLimiter(ratelimit.RegistrationRateLimit)

	return &Service{
		repo:              repo,
		jwtManager:        jwtManager,
		sessionManager:    sessionManager,
		loginRateLimit:    loginRateLimit,
		registerRateLimit: registerRateLimit,
	}, nil
}

// RegisterUser handles user registration business logic
func (s *Service) RegisterUser(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	// Rate limiting by IP
	clientIP := httpx.GetClientIPFromContext(ctx)
	rateLimitKey := ratelimit.GenerateIPKey("register", clientIP)

	if err := s.registerRateLimit.RecordAttempt(rateLimitKey); err != nil {
		return nil, NewRateLimitError("Too many registration attempts. Please try again later.")
	}

	if req.Email == "" {
		return nil, NewValidationError("Email is required.")
	}
	if !authn.IsValidPassword(req.Password) {
		return nil, ErrWeakPassword
	}

	exists, err := s.repo.UserExists(ctx, req.Email)
	if err != nil {
		return nil, NewInternalError("Failed to check user existence.")
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	passwordHash, err := authn.HashPassword(req.Password)
	if err != nil {
		return nil, NewInternalError("Failed to process password.")
	}

	userID, err := s.repo.CreateUser(ctx, req.Email, passwordHash, req.Name)
	if err != nil {
		return nil, NewInternalError("Failed to create user account.")
	}

	// Welcome email is best effort; registration succeeds either way.
	if _, err := notifications.EnqueueEmail(ctx, userID, "welcome", map[string]any{
		"name": req.Name,
	}); err != nil {
		fmt.Printf("failed to queue welcome email for user %d: %v\n", userID, err)
	}

	return &RegisterResponse{
		Message: "Account created successfully.",
		UserID:  userID,
	}, nil
}

// LoginUser handles user authentication business logic
func (s *Service) LoginUser(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	// Rate limiting by IP and email
	clientIP := httpx.GetClientIPFromContext(ctx)
	ipRateLimitKey := ratelimit.GenerateIPKey("login", clientIP)
	emailRateLimitKey := ratelimit.GenerateEmailKey("login", req.Email)

	if err := s.loginRateLimit.RecordAttempt(ipRateLimitKey); err != nil {
		return nil, NewRateLimitError("Too many login attempts from this IP. Please try again later.")
	}

	if err := s.loginRateLimit.RecordAttempt(emailRateLimitKey); err != nil {
		return nil, NewRateLimitError("Too many login attempts for this email. Please try again later.")
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := authn.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	tokenPair, err := s.jwtManager.GenerateTokens(user.ID, user.Role, user.Email)
	if err != nil {
		return nil, NewInternalError("Failed to generate authentication tokens.")
	}

	userAgent := httpx.GetUserAgentFromContext(ctx)
	_, _, err = s.sessionManager.CreateSession(
		user.ID, user.Role, user.Email, tokenPair.AccessToken, tokenPair.RefreshToken, clientIP, userAgent)
	if err != nil {
		return nil, NewInternalError("Failed to create session.")
	}

	return &LoginResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
		TokenType:    tokenPair.TokenType,
		User: UserInfo{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
			Name:  user.Name,
		},
	}, nil
}

// RefreshUserToken handles token refresh business logic
func (s *Service) RefreshUserToken(ctx context.Context, req *RefreshTokenRequest) (*RefreshTokenResponse, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	// Check if user still exists and is active
	exists, err := s.repo.UserExistsByID(ctx, claims.UserID)
	if err != nil || !exists {
		return nil, ErrUserInactive
	}

	newTokenPair, err := s.jwtManager.GenerateTokens(claims.UserID, claims.Role, claims.Email)
	if err != nil {
		return nil, NewInternalError("Failed to generate new tokens.")
	}

	return &RefreshTokenResponse{
		AccessToken:  newTokenPair.AccessToken,
		RefreshToken: newTokenPair.RefreshToken,
		ExpiresAt:    newTokenPair.ExpiresAt,
		TokenType:    newTokenPair.TokenType,
	}, nil
}

// LogoutUser handles user logout business logic
func (s *Service) LogoutUser(ctx context.Context, userID int64) (*LogoutResponse, error) {
	deletedSessions := s.sessionManager.DeleteUserSessions(userID)

	fmt.Printf("logged out user %d, deleted %d sessions\n", userID, deletedSessions)

	return &LogoutResponse{
		Message: "Logged out successfully.",
		Success: true,
	}, nil
}
