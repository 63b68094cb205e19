// Package accounts is the portal's auth facade: registration, sign-in and
// sign-out against the identity service, plus resolution of the user's
// role from the profile collections.
//
// Every operation waits for the backend session first. Failures come back
// as *Error with a localized message; no operation panics.
package accounts

import (
	"context"
	"errors"
	"strings"

	profilestore "github.com/dalemusser/classhub/internal/app/store/profiles"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/i18n"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"github.com/dalemusser/classhub/internal/app/system/normalize"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is the auth facade.
type Service struct {
	session *backend.Session
	tr      *i18n.Translator
	log     *zap.Logger
}

// New builds the facade. A nil translator uses the default catalog.
func New(session *backend.Session, tr *i18n.Translator, logger *zap.Logger) *Service {
	if tr == nil {
		tr = i18n.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{session: session, tr: tr, log: logger}
}

// RegisterResult is a created account. Warning is set when the account
// exists but its profile could not be stored.
type RegisterResult struct {
	User    *identity.User  `json:"user"`
	Profile *models.Profile `json:"profile"`
	Warning string          `json:"warning,omitempty"`
}

// LoginResult is a signed-in account and its resolved profile. Source is
// the collection the profile was read from, or "" for the in-memory
// default.
type LoginResult struct {
	User    *identity.User `json:"user"`
	Profile models.Profile `json:"userData"`
	Source  string         `json:"-"`
}

// EnsureReady waits for the backend. If the last bootstrap attempt failed
// it runs one more. It fails with ErrAuthUnavailable in the chain when no
// identity client is available afterwards.
func (s *Service) EnsureReady(ctx context.Context) (*backend.Clients, error) {
	clients, err := s.session.Ready(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Info("backend not ready; retrying", zap.Error(err))
		clients, err = s.session.Retry(ctx)
	}
	if err != nil {
		return nil, s.unavailable(err)
	}
	if clients.Identity == nil {
		return nil, s.unavailable(nil)
	}
	return clients, nil
}

// Register creates an account and its profile records. Profile write
// failures do not undo the account; they come back as a Warning.
func (s *Service) Register(ctx context.Context, email, password, name, userType string) (*RegisterResult, error) {
	email = normalize.Email(email)
	if !strings.Contains(email, "@") {
		return nil, s.fail(identity.CodeInvalidEmail, nil)
	}
	if len(password) < identity.MinPasswordLength {
		return nil, s.fail(identity.CodeWeakPassword, nil)
	}
	userType = normalize.UserType(userType)
	if !models.IsValidUserType(userType) {
		if userType != "" {
			s.log.Info("unknown user type; registering as student", zap.String("tipo", userType))
		}
		userType = models.TipoEstudiante
	}

	clients, err := s.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}

	user, err := clients.Identity.CreateAccount(ctx, email, password)
	if err != nil {
		s.log.Info("registration rejected",
			zap.String("email", email),
			zap.String("code", identity.CodeOf(err)))
		return nil, s.authError(err)
	}
	s.log.Info("account created", zap.String("uid", user.UID), zap.String("tipo", userType))

	name = normalize.Name(name)
	if name != "" {
		if err := clients.Identity.UpdateProfile(ctx, user.UID, name); err != nil {
			s.log.Warn("display name not saved", zap.String("uid", user.UID), zap.Error(err))
		} else {
			user.DisplayName = name
		}
	}

	profile := models.NewProfile(user.UID, email, name, userType, user.EmailVerified)
	profile.ID = user.UID
	res := &RegisterResult{User: user, Profile: &profile}

	if clients.Store == nil {
		s.log.Warn("document store unavailable; profile not saved", zap.String("uid", user.UID))
		res.Warning = s.tr.T("auth.profile_not_saved")
		return res, nil
	}

	profiles := profilestore.New(clients.Store)
	colls := []string{models.CollUsuarios}
	if rc := models.RoleCollection(userType); rc != "" {
		colls = append(colls, rc)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, coll := range colls {
		g.Go(func() error { return profiles.Put(gctx, coll, profile) })
	}
	if err := g.Wait(); err != nil {
		s.log.Error("profile not saved",
			zap.String("uid", user.UID),
			zap.Strings("collections", colls),
			zap.Error(err))
		res.Warning = s.storeWarning(err)
		return res, nil
	}

	// Re-read for the store-assigned timestamps.
	if stored, err := profiles.Get(ctx, models.CollUsuarios, user.UID); err == nil {
		res.Profile = stored
	} else {
		s.log.Warn("profile re-read failed", zap.String("uid", user.UID), zap.Error(err))
	}
	return res, nil
}

// Login signs a user in and resolves their profile. A missing profile is
// created as a student record; when the profile cannot be read at all the
// sign-in still succeeds with a default student profile.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalize.Email(email)
	if !strings.Contains(email, "@") {
		return nil, s.fail(identity.CodeInvalidEmail, nil)
	}
	if password == "" {
		return nil, s.fail(CodePasswordRequired, nil)
	}

	clients, err := s.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}

	user, err := clients.Identity.SignIn(ctx, email, password)
	if err != nil {
		s.log.Info("sign-in rejected",
			zap.String("email", email),
			zap.String("code", identity.CodeOf(err)))
		return nil, s.authError(err)
	}

	fallback := models.NewProfile(user.UID, user.Email, user.DisplayName, models.TipoEstudiante, user.EmailVerified)
	res := &LoginResult{User: user, Profile: fallback}

	if clients.Store == nil {
		s.log.Warn("document store unavailable; using default profile", zap.String("uid", user.UID))
		return res, nil
	}

	profiles := profilestore.New(clients.Store)
	p, coll, err := profiles.Resolve(ctx, user.UID)
	switch {
	case err == nil:
		res.Profile = *p
		res.Source = coll
	case errors.Is(err, profilestore.ErrNotFound):
		s.log.Info("no profile found; creating student record", zap.String("uid", user.UID))
		if err := profiles.Put(ctx, models.CollUsuarios, fallback); err != nil {
			s.log.Warn("student record not saved", zap.String("uid", user.UID), zap.Error(err))
		} else {
			res.Source = models.CollUsuarios
		}
	default:
		s.log.Warn("profile lookup failed; using default profile", zap.String("uid", user.UID), zap.Error(err))
	}
	res.Profile.ID = user.UID

	s.log.Info("signed in",
		zap.String("uid", user.UID),
		zap.String("tipo", res.Profile.TipoUsuario),
		zap.String("source", res.Source))
	return res, nil
}

// Logout ends the identity session for uid.
func (s *Service) Logout(ctx context.Context, uid string) error {
	clients, err := s.EnsureReady(ctx)
	if err != nil {
		return err
	}
	if err := clients.Identity.SignOut(ctx, uid); err != nil {
		return s.authError(err)
	}
	s.log.Info("signed out", zap.String("uid", uid))
	return nil
}

// CurrentUser returns the cached identity of a signed-in uid. It never
// blocks: before the backend is ready nobody is signed in.
func (s *Service) CurrentUser(uid string) (*identity.User, bool) {
	if uid == "" || s.session.State() != backend.StateReady {
		return nil, false
	}
	clients, err := s.session.Ready(context.Background())
	if err != nil || clients.Identity == nil {
		return nil, false
	}
	return clients.Identity.CurrentUser(uid)
}

// IsAuthenticated reports whether uid has a live identity session.
func (s *Service) IsAuthenticated(uid string) bool {
	_, ok := s.CurrentUser(uid)
	return ok
}

// sessionVerifier is implemented by identity services that can tell
// whether a token's session is still live.
type sessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*identity.Claims, error)
}

// VerifyToken checks an ID token issued at sign-in. When the identity
// service supports it, tokens of signed-out, disabled or deleted accounts
// are rejected too.
func (s *Service) VerifyToken(ctx context.Context, token string) (*identity.Claims, error) {
	clients, err := s.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}
	var claims *identity.Claims
	if sv, ok := clients.Identity.(sessionVerifier); ok {
		claims, err = sv.VerifySession(ctx, token)
	} else {
		claims, err = clients.Identity.VerifyToken(ctx, token)
	}
	if err != nil {
		return nil, s.authError(err)
	}
	return claims, nil
}

// CheckSession revalidates a signed-in session: token must be a live ID
// token of uid and uid's profile must not be Inactivo. It returns the
// current profile, or nil when there is no document store. Rejections
// carry ErrSessionEnded; other failures mean the check could not run.
func (s *Service) CheckSession(ctx context.Context, uid, token string) (*models.Profile, error) {
	if uid == "" || token == "" {
		return nil, ErrSessionEnded
	}
	claims, err := s.VerifyToken(ctx, token)
	switch CodeOf(err) {
	case "":
	case identity.CodeInvalidIDToken, identity.CodeUserDisabled, identity.CodeUserNotFound:
		return nil, errors.Join(ErrSessionEnded, err)
	default:
		return nil, err
	}
	if claims.UID != uid {
		return nil, ErrSessionEnded
	}

	clients, err := s.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}
	if clients.Store == nil {
		return nil, nil
	}
	p, _, err := profilestore.New(clients.Store).Resolve(ctx, uid)
	if errors.Is(err, profilestore.ErrNotFound) {
		return nil, errors.Join(ErrSessionEnded, err)
	}
	if err != nil {
		return nil, err
	}
	if p.Estado == models.EstadoInactivo {
		return nil, ErrSessionEnded
	}
	return p, nil
}

// UserInfo returns the usuarios profile of uid, or nil when there is none
// or no document store.
func (s *Service) UserInfo(ctx context.Context, uid string) (*models.Profile, error) {
	clients, err := s.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}
	if clients.Store == nil {
		return nil, nil
	}
	p, err := profilestore.New(clients.Store).Get(ctx, models.CollUsuarios, uid)
	if errors.Is(err, profilestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.log.Warn("user info lookup failed", zap.String("uid", uid), zap.Error(err))
		return nil, err
	}
	return p, nil
}
