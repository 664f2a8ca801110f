//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

func TestPostgres_ConcurrentIssuance(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("certguard"),
		tcpostgres.WithUsername("certguard"),
		tcpostgres.WithPassword("certguard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := Open(ctx, gormpostgres.Open(connStr), nil, logger.NewNoopLogger())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Migrate(ctx))

	subs := NewSubmissionRepository(conn, logger.NewNoopLogger()).(*SubmissionRepoImpl)
	certs := NewCertificateRepository(conn, logger.NewNoopLogger())

	t.Run("one submission issues once", func(t *testing.T) {
		sub := seedSubmission(t, subs, models.SubmissionPassed)

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := certs.IssueWithinTx(ctx, sub.ID, buildCert(2025))
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var ok, conflicts int
		for err := range results {
			switch {
			case err == nil:
				ok++
			case errors.IsConflictError(err):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 7, conflicts)
	})

	t.Run("indices stay unique across submissions", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		seen := map[int64]bool{}
		for i := 0; i < 10; i++ {
			sub := seedSubmission(t, subs, models.SubmissionPassed)
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				cert, err := certs.IssueWithinTx(ctx, id, buildCert(2025))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				assert.False(t, seen[cert.StatusListIndex], "index %d reused", cert.StatusListIndex)
				seen[cert.StatusListIndex] = true
			}(sub.ID)
		}
		wg.Wait()
		assert.Len(t, seen, 10)
	})

	t.Run("duplicate email maps to conflict", func(t *testing.T) {
		users := NewUserRepository(conn, logger.NewNoopLogger())
		email := uuid.NewString() + "@example.org"
		require.NoError(t, users.Create(ctx, &models.User{ID: uuid.NewString(), Email: email}))
		err := users.Create(ctx, &models.User{ID: uuid.NewString(), Email: email})
		assert.True(t, errors.IsConflictError(err))
	})
}
