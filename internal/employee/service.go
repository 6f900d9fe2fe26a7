package employee

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/entity"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/repo"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/security"
	"github.com/ovaphlow/pitchfork/service-employee-go/pkg/utilities"
)

// Store is the document-store boundary. Implementations must enforce a unique
// index on the email address and apply Update only when the stored version
// equals expectedVersion.
type Store interface {
	Create(ctx context.Context, e *entity.Employee) error
	GetByID(ctx context.Context, id string) (*entity.Employee, error)
	GetByEmail(ctx context.Context, email string) (*entity.Employee, error)
	Update(ctx context.Context, e *entity.Employee, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// CredentialGuard is the subset of *auth.Guard the service drives.
type CredentialGuard interface {
	PrepareForPersistence(ctx context.Context, rec entity.Employee, secretModified bool) (entity.Employee, error)
	Verify(presented string, rec *entity.Employee) bool
	NeedsRehash(rec *entity.Employee) bool
	IssueTokenPair(rec *entity.Employee) (*auth.TokenPair, error)
	ParseRefreshToken(ctx context.Context, token string) (*auth.Claims, error)
	RevokeRefreshToken(ctx context.Context, claims *auth.Claims) error
	ClaimRefreshToken(ctx context.Context, claims *auth.Claims) error
}

// ReferenceResolver answers whether a weak reference points at an existing record.
type ReferenceResolver interface {
	Exists(ctx context.Context, ref entity.Reference) (bool, error)
}

// Sanitizer cleans user supplied chat text before it is stored.
type Sanitizer interface {
	Sanitize(text string) string
}

// MetricsRecorder receives service level events.
type MetricsRecorder interface {
	EmployeeCreated()
	LoginAttempt(result string)
	TokensIssued(flow string)
	ObserveHash(d time.Duration)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type noopMetrics struct{}

func (noopMetrics) EmployeeCreated()          {}
func (noopMetrics) LoginAttempt(string)       {}
func (noopMetrics) TokensIssued(string)       {}
func (noopMetrics) ObserveHash(time.Duration) {}

// storeResolver checks Employee targets against the store. Candidate and Job
// records are owned by other services, so they are accepted as given.
type storeResolver struct{ store Store }

func (r storeResolver) Exists(ctx context.Context, ref entity.Reference) (bool, error) {
	if ref.TargetType != entity.TargetEmployee {
		return true, nil
	}
	_, err := r.store.GetByID(ctx, ref.TargetID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Service orchestrates the employee profile lifecycle and the auth flows built on it.
type Service struct {
	store  Store
	guard  CredentialGuard
	logger *zap.SugaredLogger

	// optional collaborators; NewService fills in defaults
	Clock        Clock
	Resolver     ReferenceResolver
	Sanitizer    Sanitizer
	Metrics      MetricsRecorder
	NewID        func() string
	NewMessageID func() string
}

func NewService(store Store, guard CredentialGuard, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:        store,
		guard:        guard,
		logger:       logger,
		Clock:        realClock{},
		Resolver:     storeResolver{store: store},
		Sanitizer:    security.NewTextSanitizer(),
		Metrics:      noopMetrics{},
		NewID:        utilities.NewKSUID,
		NewMessageID: utilities.NewSnowflakeID,
	}
}

// CreateInput carries the fields accepted on registration.
type CreateInput struct {
	EmailAddress string
	FullName     string
	Secret       string
	Employment   entity.Employment
	AvatarURL    string
	IsActive     *bool
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	EmailAddress *string
	FullName     *string
	Secret       *string
	Employment   *entity.Employment
	AvatarURL    *string
	IsActive     *bool
}

func (p Patch) empty() bool {
	return p.EmailAddress == nil && p.FullName == nil && p.Secret == nil &&
		p.Employment == nil && p.AvatarURL == nil && p.IsActive == nil
}

// Direction tells whether a chat message was sent or received by the employee.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Create validates and stores a new employee. The secret is hashed before the write.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Employee, error) {
	email, err := normalizeEmail(in.EmailAddress)
	if err != nil {
		return nil, err
	}
	name, err := normalizeFullName(in.FullName)
	if err != nil {
		return nil, err
	}
	if err := validateSecret(in.Secret); err != nil {
		return nil, err
	}
	employment, err := normalizeEmployment(in.Employment)
	if err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := s.Clock.Now()
	rec := entity.Employee{
		ID:           s.NewID(),
		EmailAddress: email,
		FullName:     name,
		Secret:       in.Secret,
		Employment:   employment,
		IsActive:     active,
		AvatarURL:    strings.TrimSpace(in.AvatarURL),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	prepared, err := s.prepare(ctx, rec, true)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, &prepared); err != nil {
		return nil, s.translate(err, email)
	}
	s.Metrics.EmployeeCreated()
	s.logger.Infow("employee created", "id", prepared.ID)
	return &prepared, nil
}

// Update applies patch to the employee. Only touched fields are validated and the
// secret is re-hashed only when the patch carries one.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*entity.Employee, error) {
	if patch.empty() {
		return s.Get(ctx, id)
	}

	var (
		email string
		name  string
		emp   entity.Employment
		err   error
	)
	if patch.EmailAddress != nil {
		if email, err = normalizeEmail(*patch.EmailAddress); err != nil {
			return nil, err
		}
	}
	if patch.FullName != nil {
		if name, err = normalizeFullName(*patch.FullName); err != nil {
			return nil, err
		}
	}
	if patch.Secret != nil {
		if err := validateSecret(*patch.Secret); err != nil {
			return nil, err
		}
	}
	if patch.Employment != nil {
		if emp, err = normalizeEmployment(*patch.Employment); err != nil {
			return nil, err
		}
	}

	return s.mutate(ctx, id, func(rec *entity.Employee) (change, error) {
		result := changed
		if patch.EmailAddress != nil {
			rec.EmailAddress = email
		}
		if patch.FullName != nil {
			rec.FullName = name
		}
		if patch.Secret != nil {
			rec.Secret = *patch.Secret
			result = secretChanged
		}
		if patch.Employment != nil {
			rec.Employment = emp
		}
		if patch.AvatarURL != nil {
			rec.AvatarURL = strings.TrimSpace(*patch.AvatarURL)
		}
		if patch.IsActive != nil {
			rec.IsActive = *patch.IsActive
		}
		return result, nil
	})
}

// Get returns an employee by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.Employee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, required("id")
	}
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "")
	}
	return rec, nil
}

// GetByEmail returns an employee by exact email address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*entity.Employee, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, required("emailAddress")
	}
	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.translate(err, email)
	}
	return rec, nil
}

// Delete removes the employee. References held by other records are left dangling.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return required("id")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return s.translate(err, "")
	}
	s.logger.Infow("employee deleted", "id", id)
	return nil
}

// AddRelation appends a reference to set. Adding an existing reference is a no-op.
func (s *Service) AddRelation(ctx context.Context, id string, set entity.RelationSet, targetID string) (*entity.Employee, error) {
	ref, err := s.reference(id, set, targetID)
	if err != nil {
		return nil, err
	}
	ok, err := s.Resolver.Exists(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve reference: %w", err)
	}
	if !ok {
		return nil, malformed("targetId", "does not reference an existing "+string(ref.TargetType))
	}

	return s.mutate(ctx, id, func(rec *entity.Employee) (change, error) {
		seq, err := rec.Relations.Sequence(set)
		if err != nil {
			return unchanged, malformed("relationSet", err.Error())
		}
		if indexOf(*seq, ref) >= 0 {
			return unchanged, nil
		}
		*seq = append(*seq, ref)
		return changed, nil
	})
}

// RemoveRelation drops a reference from set. Removing an absent reference is a no-op.
func (s *Service) RemoveRelation(ctx context.Context, id string, set entity.RelationSet, targetID string) (*entity.Employee, error) {
	ref, err := s.reference(id, set, targetID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(rec *entity.Employee) (change, error) {
		seq, err := rec.Relations.Sequence(set)
		if err != nil {
			return unchanged, malformed("relationSet", err.Error())
		}
		i := indexOf(*seq, ref)
		if i < 0 {
			return unchanged, nil
		}
		*seq = append((*seq)[:i], (*seq)[i+1:]...)
		return changed, nil
	})
}

// AppendMessage adds a chat line to the conversation with peerConnectionID,
// opening the conversation on the first message.
func (s *Service) AppendMessage(ctx context.Context, id, peerConnectionID string, dir Direction, text string) (*entity.Employee, error) {
	peer := strings.TrimSpace(peerConnectionID)
	if peer == "" {
		return nil, required("peerConnectionId")
	}
	if dir != DirectionSent && dir != DirectionReceived {
		return nil, malformed("direction", "must be sent or received")
	}
	clean := strings.TrimSpace(s.Sanitizer.Sanitize(text))
	if clean == "" {
		return nil, required("text")
	}

	return s.mutate(ctx, id, func(rec *entity.Employee) (change, error) {
		conv := rec.Conversation(peer)
		if conv == nil {
			rec.Conversations = append(rec.Conversations, entity.Conversation{PeerConnectionID: peer})
			conv = &rec.Conversations[len(rec.Conversations)-1]
		}
		msg := entity.Message{ID: s.NewMessageID(), Text: clean, Time: s.Clock.Now()}
		if dir == DirectionSent {
			conv.SentMessages = append(conv.SentMessages, msg)
		} else {
			conv.ReceivedMessages = append(conv.ReceivedMessages, msg)
		}
		return changed, nil
	})
}

// Login verifies the secret, stamps lastLogin and issues a token pair. Every
// credential failure collapses into auth.ErrAuthentication to avoid enumeration.
func (s *Service) Login(ctx context.Context, email, secret string) (*entity.Employee, *auth.TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || secret == "" {
		s.Metrics.LoginAttempt("rejected")
		return nil, nil, auth.ErrAuthentication
	}

	rec, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.Metrics.LoginAttempt("rejected")
			return nil, nil, auth.ErrAuthentication
		}
		return nil, nil, err
	}
	if !rec.IsActive || !s.guard.Verify(secret, rec) {
		s.Metrics.LoginAttempt("rejected")
		return nil, nil, auth.ErrAuthentication
	}

	pair, err := s.guard.IssueTokenPair(rec)
	if err != nil {
		s.logger.Errorw("token issuance failed", "id", rec.ID, "err", err)
		return nil, nil, err
	}

	rehash := s.guard.NeedsRehash(rec)
	rehashed := false
	updated, err := s.mutate(ctx, rec.ID, func(next *entity.Employee) (change, error) {
		now := s.Clock.Now()
		next.LastLogin = &now
		// only the hash that was verified may be replaced; a concurrent secret change wins
		rehashed = rehash && next.Secret == rec.Secret
		if rehashed {
			next.Secret = secret
			return secretChanged, nil
		}
		return changed, nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.Metrics.LoginAttempt("accepted")
	s.Metrics.TokensIssued("login")
	s.logger.Infow("employee logged in", "id", rec.ID, "rehashed", rehashed)
	return updated, pair, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.guard.ParseRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.GetByID(ctx, claims.RecordID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	// an email change or deactivation invalidates outstanding refresh tokens
	if !rec.IsActive || rec.EmailAddress != claims.EmailAddress {
		return nil, auth.ErrInvalidToken
	}

	if err := s.guard.ClaimRefreshToken(ctx, claims); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	pair, err := s.guard.IssueTokenPair(rec)
	if err != nil {
		s.logger.Errorw("token issuance failed", "id", rec.ID, "err", err)
		return nil, err
	}
	s.Metrics.TokensIssued("refresh")
	return pair, nil
}

// Logout stamps lastLogout and, when given, revokes the employee's refresh token.
func (s *Service) Logout(ctx context.Context, id, refreshToken string) (*entity.Employee, error) {
	if refreshToken != "" {
		claims, err := s.guard.ParseRefreshToken(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if claims.RecordID != id {
			return nil, auth.ErrInvalidToken
		}
		if err := s.guard.RevokeRefreshToken(ctx, claims); err != nil {
			return nil, fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	return s.mutate(ctx, id, func(rec *entity.Employee) (change, error) {
		now := s.Clock.Now()
		rec.LastLogout = &now
		return changed, nil
	})
}

type change int

const (
	unchanged change = iota
	changed
	secretChanged
)

// mutate loads the record, applies fn to a copy and commits it conditionally on
// the version that was read.
func (s *Service) mutate(ctx context.Context, id string, fn func(rec *entity.Employee) (change, error)) (*entity.Employee, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	c, err := fn(next)
	if err != nil {
		return nil, err
	}
	if c == unchanged {
		return current, nil
	}

	next.UpdatedAt = s.Clock.Now()
	next.Version = current.Version + 1

	prepared, err := s.prepare(ctx, *next, c == secretChanged)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, &prepared, current.Version); err != nil {
		return nil, s.translate(err, prepared.EmailAddress)
	}
	return &prepared, nil
}

// prepare runs the credential pre-write hook; a failure aborts the write.
func (s *Service) prepare(ctx context.Context, rec entity.Employee, secretModified bool) (entity.Employee, error) {
	start := time.Now()
	prepared, err := s.guard.PrepareForPersistence(ctx, rec, secretModified)
	if err != nil {
		s.logger.Errorw("credential pre-write hook failed", "id", rec.ID, "err", err)
		return entity.Employee{}, err
	}
	if secretModified {
		s.Metrics.ObserveHash(time.Since(start))
	}
	return prepared, nil
}

func (s *Service) reference(id string, set entity.RelationSet, targetID string) (entity.Reference, error) {
	targetType, err := set.TargetType()
	if err != nil {
		return entity.Reference{}, malformed("relationSet", err.Error())
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return entity.Reference{}, required("targetId")
	}
	if targetType == entity.TargetEmployee && targetID == strings.TrimSpace(id) {
		return entity.Reference{}, malformed("targetId", "must not reference the employee itself")
	}
	return entity.Reference{TargetType: targetType, TargetID: targetID}, nil
}

func (s *Service) translate(err error, email string) error {
	switch {
	case errors.Is(err, repo.ErrDuplicateEmail):
		return &UniquenessError{Field: "emailAddress", Value: email}
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrVersionConflict):
		return ErrConflict
	default:
		return err
	}
}

func indexOf(refs []entity.Reference, ref entity.Reference) int {
	for i, r := range refs {
		if r == ref {
			return i
		}
	}
	return -1
}

// normalizeEmail trims surrounding whitespace only; uniqueness is case-sensitive.
func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", required("emailAddress")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", malformed("emailAddress", "is not a valid address")
	}
	return trimmed, nil
}

func validateSecret(secret string) error {
	if secret == "" {
		return required("secret")
	}
	if len(secret) > auth.MaxSecretBytes {
		return malformed("secret", fmt.Sprintf("must be at most %d bytes", auth.MaxSecretBytes))
	}
	return nil
}

func normalizeFullName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", required("fullName")
	}
	return trimmed, nil
}

func normalizeEmployment(in entity.Employment) (entity.Employment, error) {
	out := entity.Employment{
		OrganizationName: strings.TrimSpace(in.OrganizationName),
		Department:       strings.TrimSpace(in.Department),
		Position:         strings.TrimSpace(in.Position),
	}
	if out.OrganizationName == "" {
		return entity.Employment{}, required("employment.organizationName")
	}
	if in.JoinDate != nil {
		d := in.JoinDate.UTC()
		d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		out.JoinDate = &d
	}
	return out, nil
}
