package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/baogate/internal/agent"
	"github.com/soyeahso/baogate/internal/domain"
	"github.com/soyeahso/baogate/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var defaults = agent.SessionDefaults{
	SystemInstruction: "be brief",
	Tools:             []string{"googleSearch"},
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"sessions", "turns"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

// --- Session store tests ---

func TestSessionStore_GetOrCreate(t *testing.T) {
	s := NewSQLiteSessionStore(testDB(t))

	sess, created, err := s.GetOrCreate("room-1", defaults)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "room-1", sess.ChannelID)
	assert.Equal(t, "be brief", sess.SystemInstruction)
	assert.Equal(t, []string{"googleSearch"}, sess.Tools)
	assert.Empty(t, sess.Turns)

	again, created, err := s.GetOrCreate("room-1", agent.SessionDefaults{SystemInstruction: "other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, "be brief", again.SystemInstruction)
}

func TestSessionStore_GetMissing(t *testing.T) {
	s := NewSQLiteSessionStore(testDB(t))
	_, err := s.Get("nowhere")
	assert.ErrorIs(t, err, agent.ErrSessionNotFound)
}

func TestSessionStore_AppendExchange(t *testing.T) {
	s := NewSQLiteSessionStore(testDB(t))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	sess, _, err := s.GetOrCreate("room-1", defaults)
	require.NoError(t, err)

	require.NoError(t, s.AppendExchange("room-1", sess.ID, domain.UserTurn("kim", "hi"), domain.ModelTurn("hello")))
	require.NoError(t, s.AppendExchange("room-1", sess.ID, domain.UserTurn("lee", "yo"), domain.ModelTurn("hey")))

	got, err := s.Get("room-1")
	require.NoError(t, err)
	require.Len(t, got.Turns, 4)
	assert.Equal(t, domain.RoleUser, got.Turns[0].Role)
	assert.Equal(t, "kim: hi", got.Turns[0].Text)
	assert.Equal(t, domain.RoleModel, got.Turns[3].Role)
	assert.Equal(t, "hey", got.Turns[3].Text)
	assert.True(t, got.Turns[0].CreatedAt.Equal(fixed))
	assert.True(t, got.UpdatedAt.Equal(fixed))
}

func TestSessionStore_AppendExchangeStaleSession(t *testing.T) {
	s := NewSQLiteSessionStore(testDB(t))

	old, _, err := s.GetOrCreate("room-1", defaults)
	require.NoError(t, err)
	_, err = s.Replace("room-1", defaults, nil)
	require.NoError(t, err)

	err = s.AppendExchange("room-1", old.ID, domain.UserTurn("kim", "hi"), domain.ModelTurn("hello"))
	assert.ErrorIs(t, err, agent.ErrSessionNotFound)

	err = s.AppendExchange("missing", old.ID, domain.UserTurn("kim", "hi"), domain.ModelTurn("hello"))
	assert.ErrorIs(t, err, agent.ErrSessionNotFound)

	cur, err := s.Get("room-1")
	require.NoError(t, err)
	assert.Empty(t, cur.Turns)
}

func TestSessionStore_Replace(t *testing.T) {
	db := testDB(t)
	s := NewSQLiteSessionStore(db)

	first, _, err := s.GetOrCreate("room-1", defaults)
	require.NoError(t, err)
	require.NoError(t, s.AppendExchange("room-1", first.ID, domain.UserTurn("kim", "a"), domain.ModelTurn("b")))

	seeded := []domain.Turn{
		domain.ModelTurn("안녕하세요! 다시 돌아왔어요."),
		domain.UserTurn("kim", "we're back"),
	}
	sess, err := s.Replace("room-1", agent.SessionDefaults{SystemInstruction: "revived"}, seeded)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, sess.ID)
	assert.Equal(t, "revived", sess.SystemInstruction)
	assert.Empty(t, sess.Tools)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, domain.RoleModel, sess.Turns[0].Role)
	assert.Equal(t, "kim: we're back", sess.Turns[1].Text)

	var orphans int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM turns WHERE session_id = ?", first.ID).Scan(&orphans))
	assert.Zero(t, orphans, "old turns should cascade away")
}

func TestSessionStore_List(t *testing.T) {
	s := NewSQLiteSessionStore(testDB(t))

	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	b, _, err := s.GetOrCreate("b-room", defaults)
	require.NoError(t, err)
	require.NoError(t, s.AppendExchange("b-room", b.ID, domain.UserTurn("kim", "q"), domain.ModelTurn("a")))
	_, _, err = s.GetOrCreate("a-room", defaults)
	require.NoError(t, err)

	list, err = s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-room", list[0].ChannelID)
	assert.Equal(t, 0, list[0].TurnCount)
	assert.Empty(t, list[0].LastRole)
	assert.Equal(t, "b-room", list[1].ChannelID)
	assert.Equal(t, 2, list[1].TurnCount)
	assert.Equal(t, domain.RoleModel, list[1].LastRole)
}

func TestSessionStore_ConcurrentCreate(t *testing.T) {
	s := NewSQLiteSessionStore(testDB(t))

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, _, err := s.GetOrCreate("room-1", defaults)
			if assert.NoError(t, err) {
				ids[i] = sess.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSessionStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "baogate.db")
	log := logging.New(nil, "silent")

	db, err := Open(path, log)
	require.NoError(t, err)
	s := NewSQLiteSessionStore(db)
	sess, _, err := s.GetOrCreate("room-1", defaults)
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, s.AppendExchange("room-1", sess.ID,
			domain.UserTurn("kim", fmt.Sprintf("q%d", i)), domain.ModelTurn(fmt.Sprintf("a%d", i))))
	}
	require.NoError(t, db.Close())

	db, err = Open(path, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	got, err := NewSQLiteSessionStore(db).Get("room-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	require.Len(t, got.Turns, 6)
	assert.Equal(t, "kim: q2", got.Turns[4].Text)
	assert.Equal(t, "a2", got.Turns[5].Text)
}
