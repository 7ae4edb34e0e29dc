package postgres_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/yoockh/dinedesk/config"
	"github.com/yoockh/dinedesk/internal/models"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
)

// testDB is shared by every test in the package; nil when no container runtime is available.
var testDB *gorm.DB

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_DB_TESTS") != "" {
		os.Exit(m.Run())
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "dinedesk",
				"POSTGRES_PASSWORD": "dinedesk",
				"POSTGRES_DB":       "dinedesk",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container unavailable, skipping db tests: %v\n", err)
		os.Exit(m.Run())
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://dinedesk:dinedesk@%s:%s/dinedesk?sslmode=disable", host, port.Port())
	db, err := config.NewPostgres(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	if err := config.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func requireDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("no postgres container")
	}
	return testDB
}

func TestConversationRepo_AppendUpserts(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	repo := pgrepo.NewConversationRepo(db)

	rid := uuid.NewString()
	thread := &models.Conversation{RestaurantID: rid, Channel: models.ChannelSMS, ThreadID: "+15550001"}
	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, thread, []models.Message{
		{Role: "user", Channel: models.ChannelSMS, ThreadID: "+15550001", Text: "table for 2?", Timestamp: at},
		{Role: "assistant", Channel: models.ChannelSMS, ThreadID: "+15550001", Text: "What time?", Timestamp: at},
	}))

	got, err := repo.GetByThread(ctx, rid, models.ChannelSMS, "+15550001")
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, rid, got.ID, models.ConversationClosed))

	cid := uuid.NewString()
	thread.CustomerID = &cid
	require.NoError(t, repo.Append(ctx, thread, []models.Message{
		{Role: "user", Channel: models.ChannelSMS, ThreadID: "+15550001", Text: "7pm", Timestamp: at.Add(time.Minute)},
	}))

	again, err := repo.GetByThread(ctx, rid, models.ChannelSMS, "+15550001")
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID, "same row, not a second conversation")
	require.Len(t, again.Messages, 3)
	assert.Equal(t, "table for 2?", again.Messages[0].Text)
	assert.Equal(t, "7pm", again.Messages[2].Text)
	assert.Equal(t, models.ConversationActive, again.Status, "new message reopens the thread")
	require.NotNil(t, again.CustomerID)
	assert.Equal(t, cid, *again.CustomerID)

	// a later anonymous message keeps the known customer
	thread.CustomerID = nil
	require.NoError(t, repo.Append(ctx, thread, []models.Message{{Role: "user", Text: "thanks", Timestamp: at}}))
	again, err = repo.GetByThread(ctx, rid, models.ChannelSMS, "+15550001")
	require.NoError(t, err)
	require.NotNil(t, again.CustomerID)
	assert.Len(t, again.Messages, 4)
}

func TestAnalyticsRepo_IncrementMergesCounters(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	repo := pgrepo.NewAnalyticsRepo(db)

	rid := uuid.NewString()
	day := time.Date(2025, 6, 10, 18, 30, 0, 0, time.UTC)

	require.NoError(t, repo.Increment(ctx, rid, day, map[string]int64{"messages": 1, "intent.reservation": 1}))
	require.NoError(t, repo.Increment(ctx, rid, day.Add(time.Hour), map[string]int64{"messages": 2, "cache_hits": 1}))
	require.NoError(t, repo.Increment(ctx, rid, day.AddDate(0, 0, 1), map[string]int64{"messages": 5}))
	require.NoError(t, repo.Increment(ctx, rid, day, nil))

	from := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	rows, err := repo.Range(ctx, rid, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var first map[string]int64
	require.NoError(t, json.Unmarshal(rows[0].Metrics, &first))
	assert.Equal(t, map[string]int64{"messages": 3, "intent.reservation": 1, "cache_hits": 1}, first)

	var second map[string]int64
	require.NoError(t, json.Unmarshal(rows[1].Metrics, &second))
	assert.Equal(t, int64(5), second["messages"])
}

func TestReservationRepo_CreateIdempotent(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	repo := pgrepo.NewReservationRepo(db)

	rid := uuid.NewString()
	at := time.Date(2025, 6, 11, 23, 0, 0, 0, time.UTC)
	newRow := func(code string) *models.Reservation {
		return &models.Reservation{
			ID:               uuid.NewString(),
			RestaurantID:     rid,
			ConfirmationCode: code,
			CustomerName:     "Ada",
			Phone:            "+15551234567",
			ReservedAt:       at,
			PartySize:        4,
			Status:           models.ReservationPending,
			IdempotencyKey:   rid + ":slot-4",
		}
	}

	first, created, err := repo.CreateIdempotent(ctx, newRow("RES-AAAA0001"))
	require.NoError(t, err)
	assert.True(t, created)

	dup, created, err := repo.CreateIdempotent(ctx, newRow("RES-BBBB0002"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)
	assert.Equal(t, "RES-AAAA0001", dup.ConfirmationCode)

	covers, err := repo.BookedCovers(ctx, rid, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, covers)
}
