// Package identity is the email/password identity service: it owns the
// credenciales collection, hashes passwords with bcrypt, locks accounts after
// repeated failures, and issues HS256 ID tokens on sign-in.
//
// Signed-in users are tracked per uid so several browser sessions can share
// one Service. Listeners registered with OnAuthChange see every sign-in and
// sign-out.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/normalize"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password CreateAccount accepts.
const MinPasswordLength = 6

// minSecretLength is the shortest token-signing secret New accepts.
const minSecretLength = 32

// User is a signed-in (or just-created) account as seen by callers.
type User struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	EmailVerified bool      `json:"emailVerified"`
	IDToken       string    `json:"-"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Provider is what the rest of the portal needs from an identity service.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context, uid string) error
	UpdateProfile(ctx context.Context, uid, displayName string) error
	CurrentUser(uid string) (*User, bool)
	OnAuthChange(fn func(uid string, u *User)) (unsubscribe func())
	VerifyToken(ctx context.Context, token string) (*Claims, error)
}

// Config tunes a Service. Zero values take the defaults noted per field.
type Config struct {
	TokenSecret string        // required, at least 32 bytes
	Issuer      string        // default "classhub"
	TokenTTL    time.Duration // default 1h

	MaxFailedAttempts int           // default 5
	LockDuration      time.Duration // default 15m
	BcryptCost        int           // default bcrypt.DefaultCost

	// DisablePasswordSignIn turns email/password account creation and
	// sign-in off (operation-not-allowed).
	DisablePasswordSignIn bool

	Now func() time.Time
}

// Service implements Provider on a docstore collection.
type Service struct {
	coll   docstore.Collection
	cfg    Config
	secret []byte
	log    *zap.Logger
	valid  *validator.Validate

	createMu sync.Mutex

	mu        sync.RWMutex
	current   map[string]*User
	listeners map[int]func(string, *User)
	nextID    int
}

var _ Provider = (*Service)(nil)

// New builds a Service over the credenciales collection of store.
func New(store docstore.Store, cfg Config, logger *zap.Logger) (*Service, error) {
	if len(cfg.TokenSecret) < minSecretLength {
		return nil, newError(CodeAPIKeyNotValid, "token secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "classhub"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 15 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		coll:      store.Collection(models.CollCredenciales),
		cfg:       cfg,
		secret:    []byte(cfg.TokenSecret),
		log:       logger,
		valid:     validator.New(),
		current:   make(map[string]*User),
		listeners: make(map[int]func(string, *User)),
	}, nil
}

// CreateAccount registers a new email/password account and signs it in.
func (s *Service) CreateAccount(ctx context.Context, email, password string) (*User, error) {
	if s.cfg.DisablePasswordSignIn {
		return nil, newError(CodeOperationNotAllowed, "password accounts are disabled")
	}
	email = normalize.Email(email)
	if err := s.valid.Var(email, "required,email"); err != nil {
		return nil, &Error{Code: CodeInvalidEmail, Message: "badly formatted email", Err: err}
	}
	if len(password) < MinPasswordLength {
		return nil, newError(CodeWeakPassword, "password should be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, &Error{Code: CodeWeakPassword, Message: "password is too long", Err: err}
		}
		return nil, &Error{Code: CodeInternal, Message: "hash password", Err: err}
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if _, err := s.findByEmail(ctx, email); err == nil {
		return nil, newError(CodeEmailAlreadyInUse, "email already registered")
	} else if CodeOf(err) != CodeUserNotFound {
		return nil, err
	}

	now := s.cfg.Now().UTC()
	cred := models.Credential{
		UID:          newUID(),
		Email:        email,
		PasswordHash: string(hash),
		LastSignInAt: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	fields, err := docstore.ToFields(cred)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Message: "encode credential", Err: err}
	}
	if err := s.coll.Set(ctx, cred.UID, fields); err != nil {
		if docstore.CodeOf(err) == docstore.CodeAlreadyExists {
			return nil, &Error{Code: CodeEmailAlreadyInUse, Message: "email already registered", Err: err}
		}
		return nil, storeError("create account", err)
	}

	s.log.Info("account created", zap.String("uid", cred.UID))
	return s.startSession(cred)
}

// SignIn checks an email/password pair. Consecutive failures past
// MaxFailedAttempts lock the account for LockDuration.
func (s *Service) SignIn(ctx context.Context, email, password string) (*User, error) {
	if s.cfg.DisablePasswordSignIn {
		return nil, newError(CodeOperationNotAllowed, "password sign-in is disabled")
	}
	email = normalize.Email(email)
	if err := s.valid.Var(email, "required,email"); err != nil {
		return nil, &Error{Code: CodeInvalidEmail, Message: "badly formatted email", Err: err}
	}

	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cred.Disabled {
		return nil, newError(CodeUserDisabled, "account disabled")
	}

	now := s.cfg.Now().UTC()
	if cred.LockedUntil != nil && now.Before(*cred.LockedUntil) {
		return nil, newError(CodeTooManyRequests, "account temporarily locked")
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, s.recordFailure(ctx, cred, now)
	}

	patch := bson.M{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_sign_in_at": now,
		"updated_at":      now,
	}
	if err := s.coll.Update(ctx, cred.UID, patch); err != nil {
		s.log.Warn("record sign-in failed", zap.String("uid", cred.UID), zap.Error(err))
	}
	cred.LastSignInAt = &now
	return s.startSession(*cred)
}

func (s *Service) recordFailure(ctx context.Context, cred *models.Credential, now time.Time) error {
	attempts := cred.FailedAttempts + 1
	patch := bson.M{"failed_attempts": attempts, "updated_at": now}
	locked := attempts >= s.cfg.MaxFailedAttempts
	if locked {
		patch["failed_attempts"] = 0
		patch["locked_until"] = now.Add(s.cfg.LockDuration)
	}
	if err := s.coll.Update(ctx, cred.UID, patch); err != nil {
		s.log.Warn("record failed sign-in", zap.String("uid", cred.UID), zap.Error(err))
	}
	if locked {
		s.log.Info("account locked", zap.String("uid", cred.UID), zap.Duration("for", s.cfg.LockDuration))
		return newError(CodeTooManyRequests, "too many failed attempts")
	}
	return newError(CodeWrongPassword, "invalid password")
}

// SignOut ends the signed-in session for uid and revokes every ID token
// issued to it so far. Signing out a uid with no session or no account is
// not an error.
func (s *Service) SignOut(ctx context.Context, uid string) error {
	s.mu.Lock()
	_, ok := s.current[uid]
	delete(s.current, uid)
	s.mu.Unlock()
	if ok {
		s.emit(uid, nil)
	}

	cred, err := s.findByUID(ctx, uid)
	if CodeOf(err) == CodeUserNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	err = s.coll.Update(ctx, uid, bson.M{
		"session_version": cred.SessionVersion + 1,
		"updated_at":      s.cfg.Now().UTC(),
	})
	if err != nil && !docstore.IsNotFound(err) {
		return storeError("revoke tokens", err)
	}
	return nil
}

// UpdateProfile sets the display name of an account.
func (s *Service) UpdateProfile(ctx context.Context, uid, displayName string) error {
	displayName = normalize.Name(displayName)
	err := s.coll.Update(ctx, uid, bson.M{
		"display_name": displayName,
		"updated_at":   s.cfg.Now().UTC(),
	})
	if err != nil {
		if docstore.IsNotFound(err) {
			return newError(CodeUserNotFound, "no account for uid")
		}
		return storeError("update profile", err)
	}

	s.mu.Lock()
	if u, ok := s.current[uid]; ok {
		cp := *u
		cp.DisplayName = displayName
		s.current[uid] = &cp
	}
	s.mu.Unlock()
	return nil
}

// SetDisabled enables or disables an account. Disabling also ends any
// signed-in session.
func (s *Service) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	err := s.coll.Update(ctx, uid, bson.M{
		"disabled":   disabled,
		"updated_at": s.cfg.Now().UTC(),
	})
	if err != nil {
		if docstore.IsNotFound(err) {
			return newError(CodeUserNotFound, "no account for uid")
		}
		return storeError("set disabled", err)
	}
	if disabled {
		return s.SignOut(ctx, uid)
	}
	return nil
}

// DeleteAccount removes the credential for uid and ends its session.
func (s *Service) DeleteAccount(ctx context.Context, uid string) error {
	if err := s.coll.Delete(ctx, uid); err != nil {
		return storeError("delete account", err)
	}
	return s.SignOut(ctx, uid)
}

// CurrentUser returns the signed-in user for uid.
func (s *Service) CurrentUser(uid string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.current[uid]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// OnAuthChange registers fn for sign-in (u != nil) and sign-out (u == nil)
// events. Listeners run synchronously on the goroutine that caused the
// change.
func (s *Service) OnAuthChange(fn func(uid string, u *User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// VerifySession validates an ID token like VerifyToken and also checks
// that its account still exists, is enabled and has not signed out since
// the token was issued.
func (s *Service) VerifySession(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	cred, err := s.findByUID(ctx, claims.UID)
	if err != nil {
		return nil, err
	}
	if cred.Disabled {
		return nil, newError(CodeUserDisabled, "account disabled")
	}
	if cred.SessionVersion != claims.SessionVersion {
		return nil, newError(CodeInvalidIDToken, "session ended")
	}
	return claims, nil
}

// VerifyToken validates an ID token and returns its claims.
func (s *Service) VerifyToken(_ context.Context, token string) (*Claims, error) {
	claims, err := parseIDToken(s.secret, s.cfg.Issuer, s.cfg.Now, token)
	if err != nil {
		return nil, &Error{Code: CodeInvalidIDToken, Message: "token rejected", Err: err}
	}
	return claims, nil
}

func (s *Service) startSession(cred models.Credential) (*User, error) {
	token, exp, err := newIDToken(s.secret, s.cfg.Issuer, s.cfg.Now().UTC(), s.cfg.TokenTTL, Claims{
		UID:            cred.UID,
		Email:          cred.Email,
		EmailVerified:  cred.EmailVerified,
		SessionVersion: cred.SessionVersion,
	})
	if err != nil {
		return nil, &Error{Code: CodeInternal, Message: "sign token", Err: err}
	}
	u := &User{
		UID:           cred.UID,
		Email:         cred.Email,
		DisplayName:   cred.DisplayName,
		EmailVerified: cred.EmailVerified,
		IDToken:       token,
		ExpiresAt:     exp,
	}

	s.mu.Lock()
	s.current[u.UID] = u
	s.mu.Unlock()
	s.emit(u.UID, u)

	cp := *u
	return &cp, nil
}

func (s *Service) emit(uid string, u *User) {
	s.mu.RLock()
	fns := make([]func(string, *User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		if u == nil {
			fn(uid, nil)
			continue
		}
		cp := *u
		fn(uid, &cp)
	}
}

func (s *Service) findByEmail(ctx context.Context, email string) (*models.Credential, error) {
	docs, err := s.coll.Find(ctx, docstore.Query{Filters: []docstore.Filter{docstore.Eq("email", email)}})
	if err != nil {
		return nil, storeError("find account", err)
	}
	if len(docs) == 0 {
		return nil, newError(CodeUserNotFound, "no account for email")
	}
	var cred models.Credential
	if err := docs[0].Decode(&cred); err != nil {
		return nil, &Error{Code: CodeInternal, Message: "decode credential", Err: err}
	}
	return &cred, nil
}

func (s *Service) findByUID(ctx context.Context, uid string) (*models.Credential, error) {
	doc, err := s.coll.Get(ctx, uid)
	if docstore.IsNotFound(err) {
		return nil, newError(CodeUserNotFound, "no account for uid")
	}
	if err != nil {
		return nil, storeError("get account", err)
	}
	var cred models.Credential
	if err := doc.Decode(&cred); err != nil {
		return nil, &Error{Code: CodeInternal, Message: "decode credential", Err: err}
	}
	return &cred, nil
}

// newUID returns a 28-character alphanumeric account id.
func newUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:28]
}

func storeError(op string, err error) error {
	switch docstore.CodeOf(err) {
	case docstore.CodeUnavailable:
		return &Error{Code: CodeNetworkRequestFailed, Message: op, Err: err}
	case docstore.CodePermissionDenied:
		return &Error{Code: CodeAPIKeyNotValid, Message: op, Err: err}
	}
	return &Error{Code: CodeInternal, Message: op, Err: err}
}
