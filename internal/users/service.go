package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
	"github.com/kisaansetu/kisaan-setu/internal/mail"
)

const defaultSendTimeout = 30 * time.Second

var ErrInvalidInput = errors.New("invalid input")

// Repository is the persistence the service needs.
type Repository interface {
	CreateUnverified(ctx context.Context, email, name, token string) (User, error)
	UpsertGoogleUser(ctx context.Context, googleID, email, name string) (User, error)
	MarkVerified(ctx context.Context, token string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"required,max=100"`
}

// Service registers users and confirms their email addresses.
type Service struct {
	repo        Repository
	mailer      mail.Mailer
	frontendURL string
	validate    *validator.Validate
	sendTimeout time.Duration

	wg sync.WaitGroup
}

func NewService(repo Repository, mailer mail.Mailer, frontendURL string) *Service {
	return &Service{
		repo:        repo,
		mailer:      mailer,
		frontendURL: frontendURL,
		validate:    validator.New(),
		sendTimeout: defaultSendTimeout,
	}
}

// Register creates an unverified account and sends the verification email in
// the background. A failed send is logged and does not fail registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	token := uuid.NewString()
	u, err := s.repo.CreateUnverified(ctx, in.Email, in.Name, token)
	if err != nil {
		return User{}, err
	}

	logger.GetLogger().Infow("User registered", "userID", u.ID, "email", logger.MaskEmail(u.Email))
	s.sendVerification(u.Email, token)
	return u, nil
}

func (s *Service) sendVerification(to, token string) {
	if s.mailer == nil {
		logger.GetLogger().Warnw("No mailer configured; verification email skipped", "email", logger.MaskEmail(to))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		defer cancel()

		msg, err := mail.VerificationMessage(to, token, s.frontendURL)
		if err == nil {
			err = s.mailer.Send(ctx, msg)
		}
		if err != nil {
			logger.GetLogger().Errorw("Failed to send verification email",
				"email", logger.MaskEmail(to), "error", err)
		}
	}()
}

// Verify confirms the account that was issued token.
func (s *Service) Verify(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, fmt.Errorf("%w: missing token", ErrInvalidInput)
	}
	u, err := s.repo.MarkVerified(ctx, token)
	if err != nil {
		return User{}, err
	}
	logger.GetLogger().Infow("User verified", "userID", u.ID)
	return u, nil
}

// LoginWithGoogle records a Google identity and returns the linked account.
func (s *Service) LoginWithGoogle(ctx context.Context, googleID, email, name string) (User, error) {
	if googleID == "" || email == "" {
		return User{}, fmt.Errorf("%w: incomplete google profile", ErrInvalidInput)
	}
	return s.repo.UpsertGoogleUser(ctx, googleID, strings.ToLower(email), name)
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// Wait blocks until in-flight verification emails have been attempted.
func (s *Service) Wait() {
	s.wg.Wait()
}
