package sqlstore_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/aussiebroadwan/keystone/internal/keystone/store/drivers/sqlstore"
	"github.com/aussiebroadwan/keystone/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newPostgresStore starts a throwaway postgres and returns a migrated store.
// It is skipped under -short and when no container runtime is available.
func newPostgresStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "keystone",
				"POSTGRES_PASSWORD": "keystone",
				"POSTGRES_DB":       "keystone",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://keystone:keystone@%s:%s/keystone?sslmode=disable", host, port.Port())
	s, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, dsn)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgres_UsersAndRequestLogs(t *testing.T) {
	s := newPostgresStore(t)
	require.Equal(t, sqlstore.DriverPostgres, s.Driver())
	require.NoError(t, s.ApplyMigrations())

	u := seedUser(t, s, "pg@x.com", epoch)
	dup := u
	dup.ID = idx.New().String()
	require.ErrorIs(t, s.Users().CreateUser(t.Context(), dup), store.ErrAlreadyExists)

	got, err := s.Users().GetUserByEmail(t.Context(), "pg@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.True(t, got.CreatedAt.Equal(epoch))

	logs := []domain.RequestLog{
		{ID: idx.NewAt(epoch).String(), Method: "GET", Route: "/v1/users", Status: 200, DurationMS: 10, UserID: u.ID, Transport: domain.TransportHeader, AuthState: "AUTHENTICATED", CreatedAt: epoch},
		{ID: idx.NewAt(epoch).String(), Method: "POST", Route: "/graphql", Status: 401, DurationMS: 30, Transport: domain.TransportCookie, AuthState: "ANONYMOUS", CreatedAt: epoch.Add(time.Minute)},
	}
	require.NoError(t, s.RequestLogs().InsertRequestLogs(t.Context(), logs))

	sum, err := s.RequestLogs().SummarizeRequests(t.Context(), epoch, epoch.Add(time.Hour), 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, sum.TotalRequests)
	require.InDelta(t, 20.0, sum.AvgDurationMS, 0.001)
	require.EqualValues(t, 1, sum.ActiveUsers)
	require.Equal(t, map[string]int64{"2xx": 1, "4xx": 1}, sum.StatusClasses)
}
