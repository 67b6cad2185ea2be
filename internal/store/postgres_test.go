package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/wadl-labs/candidate-sourcer/internal/talent"
	"github.com/wadl-labs/candidate-sourcer/internal/trace"
)

func TestUpsertCandidateReturnsID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	c := talent.Candidate{
		ProfileURL:      "https://www.linkedin.com/in/jdoe",
		Name:            "Jane Doe",
		CurrentTitle:    "Director of Behavioral Health",
		CurrentCompany:  "Acme Health",
		YearsExperience: 12,
		Skills:          []string{"leadership"},
		RawText:         "profile text",
		Source:          "dataset",
		LastFetchedAt:   now,
	}

	mock.ExpectQuery("INSERT INTO candidates").
		WithArgs(
			c.ProfileURL, c.Name, c.Headline, c.CurrentTitle, c.CurrentCompany, c.Location,
			c.YearsExperience, []byte(`["leadership"]`), []byte(`[]`), []byte(`null`), []byte(`null`),
			c.RawText, c.Source, c.LastFetchedAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	saved, err := s.UpsertCandidate(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, int64(7), saved.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandidateByURLNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM candidates WHERE profile_url").
		WithArgs("https://www.linkedin.com/in/ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.CandidateByURL(context.Background(), "https://www.linkedin.com/in/ghost")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	run := talent.Run{
		ID:        uuid.New(),
		JDID:      3,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(run.ID, run.JDID, run.CreatedAt, 0, 0, 0, int64(0), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	run := talent.Run{ID: uuid.New()}
	mock.ExpectExec("UPDATE runs SET").
		WithArgs(run.ID, 0, 0, 0, int64(0), int64(0)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.UpdateRunStats(context.Background(), run)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTraceWritesInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	steps := []trace.Step{
		{RunID: runID, Seq: 0, Stage: "init", At: now},
		{RunID: runID, Seq: 1, Stage: "round", Detail: map[string]any{"round": 1}, At: now},
	}

	mock.ExpectExec("INSERT INTO run_trace").
		WithArgs(runID, 0, "init", []byte(`null`), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO run_trace").
		WithArgs(runID, 1, "round", []byte(`{"round":1}`), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.AppendTrace(context.Background(), steps))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPlacementEmbeddings(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"placement_id", "candidate_id", "vector"}).
		AddRow(int64(1), int64(10), []byte(`[0.1,0.2]`)).
		AddRow(int64(2), int64(11), []byte(`[0.3,0.4]`))

	mock.ExpectQuery("SELECT pp.placement_id, pp.candidate_id, ce.vector").
		WillReturnRows(rows)

	embs, err := s.ListPlacementEmbeddings(context.Background())
	require.NoError(t, err)
	require.Len(t, embs, 2)
	require.Equal(t, int64(1), embs[0].PlacementID)
	require.InDelta(t, 0.2, float64(embs[0].Vector[1]), 1e-6)
	require.NoError(t, mock.ExpectationsWereMet())
}
