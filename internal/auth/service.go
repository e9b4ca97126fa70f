package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/victorgomez09/keygate/internal/events"
	"github.com/victorgomez09/keygate/internal/models"
)

// Store is the persistence surface for users and issued tokens.
type Store interface {
	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	GetUserByID(id int64) (*models.User, error)
	UpdateUser(user *models.User) error
	CreateToken(token *models.Token) error
	GetTokenByJTI(jti string) (*models.Token, error)
	TouchToken(id int64, usedAt time.Time) error
	RevokeToken(jti string) error
	RevokeAllUserTokens(userID int64) error
	CleanupExpiredTokens() error
}

// Config holds the token and lockout settings for the authenticator.
type Config struct {
	JWTSecret        []byte        // Secret key used for signing JWT tokens.
	TokenExpiry      time.Duration // Duration after which access tokens expire.
	MaxLoginAttempts int           // Failed logins before the account locks.
	LockDuration     time.Duration // How long a locked account stays locked.
	CleanupInterval  time.Duration // Interval for sweeping expired session tokens.
}

// Service issues and verifies signed bearer tokens and resolves the subject
// behind them. Roles are always re-read from the store by callers that gate
// on them; the role claim inside the token is informational only.
type Service struct {
	store  Store
	config Config
	bus    *events.Bus
	logger *zap.Logger
	done   chan struct{}
}

func NewService(store Store, config Config, bus *events.Bus, logger *zap.Logger) *Service {
	if config.TokenExpiry == 0 {
		config.TokenExpiry = time.Hour
	}
	if config.MaxLoginAttempts == 0 {
		config.MaxLoginAttempts = 5
	}
	if config.LockDuration == 0 {
		config.LockDuration = 15 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Hour
	}

	s := &Service{
		store:  store,
		config: config,
		bus:    bus,
		logger: logger,
		done:   make(chan struct{}),
	}

	go s.tokenCleanupRoutine()

	return s
}

func (s *Service) Close() {
	close(s.done)
}

func (s *Service) tokenCleanupRoutine() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.store.CleanupExpiredTokens(); err != nil {
				s.logger.Error("Error cleaning up tokens", zap.Error(err))
			}
		case <-s.done:
			return
		}
	}
}

// CreateUser registers a new subject with a bcrypt-hashed password.
func (s *Service) CreateUser(username, password string, role models.Role) (*models.User, error) {
	existing, err := s.store.GetUserByUsername(username)
	if err == nil && existing != nil {
		return nil, ErrUsernameTaken
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:  username,
		Password:  string(hashed),
		Role:      role,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies a username/password pair and issues a signed token.
// Repeated failures lock the account for the configured duration.
func (s *Service) Authenticate(username, password, clientIP, userAgent string) (*models.Token, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		s.bus.Publish(events.Event{Kind: events.KindAuthFailed, IP: clientIP, Detail: "unknown user"})
		return nil, ErrInvalidCredentials
	}

	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		return nil, ErrUserLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		user.FailedAttempts++
		if user.FailedAttempts >= s.config.MaxLoginAttempts {
			lockUntil := time.Now().Add(s.config.LockDuration)
			user.LockedUntil = &lockUntil
			s.logger.Warn("Account locked after repeated failures",
				zap.String("username", username),
				zap.Time("locked_until", lockUntil))
		}

		if err := s.store.UpdateUser(user); err != nil {
			s.logger.Error("Failed to persist failed login attempt", zap.Error(err))
		}

		s.bus.Publish(events.Event{Kind: events.KindAuthFailed, IP: clientIP, Detail: username})
		return nil, ErrInvalidCredentials
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	now := time.Now()
	user.LastLoginAt = &now
	user.LastLoginIP = clientIP

	if err := s.store.UpdateUser(user); err != nil {
		s.logger.Error("Failed to persist login", zap.Error(err))
	}

	return s.generateToken(user, clientIP, userAgent)
}

func (s *Service) generateToken(user *models.User, clientIP, userAgent string) (*models.Token, error) {
	jwtID, err := generateRandomString(32)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.config.TokenExpiry)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"exp":     expiresAt.Unix(),
		"jti":     jwtID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, err
	}

	record := &models.Token{
		UserID:     user.ID,
		Token:      tokenString,
		JTI:        jwtID,
		Role:       user.Role,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
		LastUsedAt: time.Now(),
		ClientIP:   clientIP,
		UserAgent:  userAgent,
	}

	if err := s.store.CreateToken(record); err != nil {
		return nil, err
	}
	return record, nil
}

// ValidateToken verifies signature, expiry and revocation of a bearer token
// and returns the subject it names.
func (s *Service) ValidateToken(tokenString string) (*models.Subject, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.config.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	jti, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	dbToken, err := s.store.GetTokenByJTI(jti)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if dbToken.RevokedAt != nil {
		return nil, ErrRevokedToken
	}

	if err := s.store.TouchToken(dbToken.ID, time.Now()); err != nil {
		s.logger.Warn("Failed to touch token", zap.Error(err))
	}

	role, _ := claims["role"].(string)
	return &models.Subject{ID: int64(userID), Role: models.Role(role)}, nil
}

// Role loads the subject's persisted role. The role gate uses this instead
// of the role claim carried in the token.
func (s *Service) Role(userID int64) (models.Role, error) {
	user, err := s.store.GetUserByID(userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// RevokeToken marks the token named by the given credential as revoked.
func (s *Service) RevokeToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.config.JWTSecret, nil
	})
	if err != nil {
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrInvalidToken
	}

	jti, ok := claims["jti"].(string)
	if !ok {
		return ErrInvalidToken
	}

	return s.store.RevokeToken(jti)
}

// generateRandomString creates a secure random string of the given length.
func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}
