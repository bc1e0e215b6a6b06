package plans

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRepository_SaveHistory(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, testLogger())
	history := []types.ChatTurn{{Role: "user", Content: "Beaches near Faro"}}

	db.ExpectExec(`INSERT INTO chat_histories`).
		WithArgs("sess-1", []byte(`[{"role":"user","content":"Beaches near Faro"}]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveHistory(context.Background(), "sess-1", history))
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_SaveHistory_DBError(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, testLogger())
	db.ExpectExec(`INSERT INTO chat_histories`).
		WithArgs("sess-1", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = repo.SaveHistory(context.Background(), "sess-1", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save chat history")
}

func TestRepository_LoadHistory(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, testLogger())
	db.ExpectQuery(`SELECT turns FROM chat_histories`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"turns"}).
			AddRow([]byte(`[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`)))

	history, err := repo.LoadHistory(context.Background(), "sess-1")

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "assistant", history[1].Role)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_LoadHistory_Unknown(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, testLogger())
	db.ExpectQuery(`SELECT turns FROM chat_histories`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	history, err := repo.LoadHistory(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, history)
}

func TestRepository_SavePlan(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, testLogger())
	id := uuid.New()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	plan := &types.SavedPlan{Key: "faro-weekend", Title: "Faro weekend"}

	db.ExpectQuery(`INSERT INTO saved_plans .* ON CONFLICT \(plan_key\) DO UPDATE`).
		WithArgs("faro-weekend", "Faro weekend", []byte(`[]`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "updated_at"}).AddRow(id, now))

	require.NoError(t, repo.SavePlan(context.Background(), plan))
	assert.Equal(t, id, plan.ID)
	assert.Equal(t, now, plan.UpdatedAt)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_LoadPlan(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, testLogger())
	id := uuid.New()
	now := time.Now().UTC()
	db.ExpectQuery(`FROM saved_plans`).
		WithArgs("faro-weekend").
		WillReturnRows(pgxmock.NewRows([]string{"id", "plan_key", "title", "stops", "updated_at"}).
			AddRow(id, "faro-weekend", "Faro weekend", []byte(`[{"id":"p1","name":"Praia de Faro","category":"beach","location":{"address":"Ilha de Faro"}}]`), now))

	plan, err := repo.LoadPlan(context.Background(), "faro-weekend")

	require.NoError(t, err)
	assert.Equal(t, id, plan.ID)
	require.Len(t, plan.Stops, 1)
	assert.Equal(t, "Praia de Faro", plan.Stops[0].Name)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_LoadPlan_NotFound(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, testLogger())
	db.ExpectQuery(`FROM saved_plans`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.LoadPlan(context.Background(), "missing")

	assert.ErrorIs(t, err, types.ErrPlanNotFound)
}
