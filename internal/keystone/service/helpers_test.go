package service_test

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/events"
	"github.com/aussiebroadwan/keystone/internal/keystone/mail"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/store/drivers/sqlstore"
	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/aussiebroadwan/keystone/pkg/idx"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "P@ssw0rd1"

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Notify(msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) mail.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no mail queued")
	return o.msgs[len(o.msgs)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

var tokenInLink = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// linkToken pulls the one-time token out of a rendered mail.
func linkToken(t *testing.T, msg mail.Message) string {
	t.Helper()
	m := tokenInLink.FindStringSubmatch(msg.Text)
	require.Len(t, m, 2, "no token link in %q", msg.Text)
	return m[1]
}

type recordingPublisher struct {
	mu  sync.Mutex
	evs []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.evs))
	for i, ev := range p.evs {
		out[i] = ev.Type
	}
	return out
}

var _ events.Publisher = (*recordingPublisher)(nil)

type env struct {
	clock  *clockwork.FakeClock
	store  *sqlstore.Store
	codec  *jwtx.Codec
	auth   *session.Authenticator
	hasher *cryptox.Hasher
	outbox *outbox
	events *recordingPublisher

	authSvc *service.AuthService
	users   *service.UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	st, err := sqlstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	codec, err := jwtx.NewCodec(jwtx.Config{
		Issuer:        "keystone-test",
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		Clock:         clock,
	})
	require.NoError(t, err)

	auth, err := session.NewAuthenticator(session.Config{Codec: codec, Users: st.Users(), Clock: clock})
	require.NoError(t, err)

	renderer, err := mail.NewRenderer("Keystone", "https://id.example.com")
	require.NoError(t, err)

	e := &env{
		clock:  clock,
		store:  st,
		codec:  codec,
		auth:   auth,
		hasher: cryptox.NewHasher("test-pepper"),
		outbox: &outbox{},
		events: &recordingPublisher{},
	}
	e.authSvc = &service.AuthService{
		Store:           st,
		Sessions:        auth,
		Hasher:          e.hasher,
		Clock:           clock,
		Events:          e.events,
		Mailer:          e.outbox,
		Mail:            renderer,
		MaxFailedLogins: 3,
	}
	e.users = &service.UserService{Store: st, Clock: clock, Events: e.events}
	return e
}

// seed inserts a verified user with testPassword directly.
func (e *env) seed(t *testing.T, email string, role domain.Role) domain.User {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)
	now := e.clock.Now()
	u := domain.User{
		ID:              idx.NewAt(now).String(),
		Email:           email,
		Name:            strings.Split(email, "@")[0],
		PasswordHash:    hash,
		Role:            role,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.store.Users().CreateUser(t.Context(), u))
	return u
}
