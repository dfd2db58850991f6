package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biblio/internal"
	"biblio/internal/config"
)

func openTestPG(t *testing.T) *PG {
	t.Helper()
	dsn := os.Getenv("BIBLIO_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("BIBLIO_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := OpenPostgres(ctx, dsn, Options{})
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	_, err = pg.Wipe(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	return pg
}

func TestPostgresInsertQuery(t *testing.T) {
	pg := openTestPG(t)
	ctx := context.Background()

	var rolledBack = assert.AnError
	err := pg.WithTx(ctx, func(w Writer) error {
		inserted, err := w.InsertIfAbsent(ctx, book("NILS", "BD", "Hergé", "Tintin"))
		require.NoError(t, err)
		assert.True(t, inserted)
		return rolledBack
	})
	require.ErrorIs(t, err, rolledBack)

	seed(t, pg,
		book("NILS", "BD", "Hergé", "Tintin"),
		book("NILS", "BD", "Hergé", "Tintin"),
		book("CAROLE", "Livre", "Camus", "La Peste"),
		book("axel", "Livre", "Asimov", "Fondation"),
	)

	recs, err := pg.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	// COLLATE "C": upper case sorts before lower case
	assert.Equal(t, []string{"CAROLE", "NILS", "axel"}, []string{recs[0].Owner, recs[1].Owner, recs[2].Owner})

	recs, err = pg.Query(ctx, Filter{Text: "HERGÉ", Category: "BD"})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	stats, err := pg.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)

	owners, err := pg.Distinct(ctx, internal.FieldOwner)
	require.NoError(t, err)
	assert.Len(t, owners, 3)

	id := t.Name() + time.Now().String()
	claimed, err := pg.ClaimMail(ctx, "gmail", id, "s", "f", 2)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, pg.SetMailStatus(ctx, "gmail", id, MailFailed))
	claimed, err = pg.ClaimMail(ctx, "gmail", id, "s", "f", 2)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = pg.ClaimMail(ctx, "gmail", id, "s", "f", 2)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{DBDriver: "mysql"})
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(context.Background(), config.Config{DBDriver: "postgres"})
	require.Error(t, err, "postgres without DATABASE_URL")
}
