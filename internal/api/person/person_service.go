package person

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mfigueiredo/person-registry/config"
	"github.com/mfigueiredo/person-registry/internal/api"
	"github.com/mfigueiredo/person-registry/internal/api/auth"
)

var _ PersonService = (*PersonServiceImpl)(nil)

// PersonService orchestrates validation, uniqueness checks, password hashing
// and token issuance on top of the repository.
type PersonService interface {
	Create(ctx context.Context, req *CreatePersonRequest) (*Person, error)
	Get(ctx context.Context, id int64) (*Person, error)
	List(ctx context.Context, filter *Filter) ([]Person, error)
	Update(ctx context.Context, id int64, req *UpdatePersonRequest) (*Person, error)
	Delete(ctx context.Context, id int64) error
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
}

type PersonServiceImpl struct {
	repo   PersonRepo
	cfg    *config.Config
	logger *slog.Logger
}

func NewPersonService(repo PersonRepo, cfg *config.Config, logger *slog.Logger) *PersonServiceImpl {
	return &PersonServiceImpl{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// Create registers a new person. The CPF lookup before insert is advisory,
// for a friendly error message; the partial unique index is what actually
// guarantees uniqueness under concurrent registration.
func (s *PersonServiceImpl) Create(ctx context.Context, req *CreatePersonRequest) (*Person, error) {
	l := s.logger.With(slog.String("method", "Create"))

	if fields := ValidateCreate(req); fields != nil {
		return nil, api.NewValidationError(fields)
	}

	cpf := NormalizeCPF(req.CPF)

	existing, err := s.repo.GetPersonByCPF(ctx, cpf)
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("create person: cpf lookup failed: %w", err)
	}
	if existing != nil {
		l.WarnContext(ctx, "CPF already registered to an active person")
		return nil, fmt.Errorf("cpf already in use: %w", api.ErrConflict)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("create person: failed to hash password: %w", err)
	}

	p := &Person{
		Name:         req.Name,
		Gender:       req.Gender,
		Email:        req.Email,
		BirthDate:    *req.BirthDate,
		Nationality:  req.Nationality,
		PlaceOfBirth: req.PlaceOfBirth,
		CPF:          cpf,
		PasswordHash: string(hashed),
	}

	if err := s.repo.CreatePerson(ctx, p); err != nil {
		return nil, err
	}

	l.InfoContext(ctx, "Person registered", slog.Int64("personID", p.ID))
	return p, nil
}

func (s *PersonServiceImpl) Get(ctx context.Context, id int64) (*Person, error) {
	return s.repo.GetPersonByID(ctx, id)
}

func (s *PersonServiceImpl) List(ctx context.Context, filter *Filter) ([]Person, error) {
	return s.repo.ListPersons(ctx, filter)
}

// Update overwrites only the supplied fields of an active person. A supplied
// CPF is revalidated and re-checked for uniqueness against other active
// persons, the same way as on create.
func (s *PersonServiceImpl) Update(ctx context.Context, id int64, req *UpdatePersonRequest) (*Person, error) {
	l := s.logger.With(slog.String("method", "Update"), slog.Int64("personID", id))

	if fields := ValidateUpdate(req); fields != nil {
		return nil, api.NewValidationError(fields)
	}

	current, err := s.repo.GetPersonByID(ctx, id)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("invalid ID: %w", api.ErrNotFound)
		}
		return nil, err
	}

	params := &UpdateParams{
		Name:         req.Name,
		Gender:       req.Gender,
		Email:        req.Email,
		Nationality:  req.Nationality,
		PlaceOfBirth: req.PlaceOfBirth,
	}
	if req.BirthDate != nil {
		bd := req.BirthDate.Time
		params.BirthDate = &bd
	}
	if req.CPF != nil {
		cpf := NormalizeCPF(*req.CPF)
		if cpf != current.CPF {
			other, err := s.repo.GetPersonByCPF(ctx, cpf)
			if err != nil && !errors.Is(err, api.ErrNotFound) {
				return nil, fmt.Errorf("update person: cpf lookup failed: %w", err)
			}
			if other != nil {
				return nil, fmt.Errorf("cpf already in use: %w", api.ErrConflict)
			}
		}
		params.CPF = &cpf
	}

	if err := s.repo.UpdatePerson(ctx, id, params); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("invalid ID: %w", api.ErrNotFound)
		}
		return nil, err
	}

	l.InfoContext(ctx, "Person updated")
	return s.repo.GetPersonByID(ctx, id)
}

// Delete soft-deletes an active person; the record stays in storage.
func (s *PersonServiceImpl) Delete(ctx context.Context, id int64) error {
	err := s.repo.SoftDeletePerson(ctx, id)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return fmt.Errorf("invalid ID: %w", api.ErrNotFound)
		}
		return err
	}
	s.logger.InfoContext(ctx, "Person soft-deleted", slog.Int64("personID", id))
	return nil
}

// Login authenticates by CPF and password. An unknown CPF and a wrong
// password fail identically so the endpoint never leaks which persons exist.
func (s *PersonServiceImpl) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	l := s.logger.With(slog.String("method", "Login"))

	p, err := s.repo.GetPersonByCPF(ctx, NormalizeCPF(req.CPF))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, api.ErrUnauthenticated
		}
		return nil, fmt.Errorf("login: lookup failed: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		l.WarnContext(ctx, "Password mismatch on login attempt")
		return nil, api.ErrUnauthenticated
	}

	token, expiresAt, err := auth.GenerateAccessToken(p.ID, p.Name, s.cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("login: failed to issue token: %w", err)
	}

	l.InfoContext(ctx, "Login successful", slog.Int64("personID", p.ID))
	return &LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Person:      p,
	}, nil
}
