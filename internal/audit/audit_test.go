package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bizstudio/portal/internal/db"
	"github.com/bizstudio/portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "audit-test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

func TestWrite_NilActorUsesAnonymousSentinel(t *testing.T) {
	conn := openTestDB(t)
	w := NewWriter(conn, nil)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, Entry{
		Action:     ActionLoginFailed,
		TargetType: TargetAuth,
		Metadata:   map[string]any{"email": "nobody@example.com"},
	}))

	var anon models.User
	require.NoError(t, conn.Where("email = ?", models.AnonymousEmail).First(&anon).Error)

	var row models.AuditLog
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, anon.ID, row.ActorUserID)
	assert.Equal(t, ActionLoginFailed, row.Action)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(row.Metadata, &meta))
	assert.Equal(t, "nobody@example.com", meta["email"])
}

func TestWrite_UnknownActorUsesAnonymousSentinel(t *testing.T) {
	conn := openTestDB(t)
	w := NewWriter(conn, nil)
	ghost := "ghost-user-id"

	require.NoError(t, w.Write(context.Background(), Entry{ActorUserID: &ghost, Action: ActionVerifyAppToken}))

	var anon models.User
	require.NoError(t, conn.Where("email = ?", models.AnonymousEmail).First(&anon).Error)

	var row models.AuditLog
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, anon.ID, row.ActorUserID)
}

func TestWrite_RecreatesMissingSentinel(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.Where("email = ?", models.AnonymousEmail).Delete(&models.User{}).Error)

	w := NewWriter(conn, nil)
	require.NoError(t, w.Write(context.Background(), Entry{Action: ActionInviteConsumeFailed, TargetType: TargetUser}))

	var count int64
	require.NoError(t, conn.Model(&models.User{}).Where("email = ?", models.AnonymousEmail).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestWriteTx_RollsBackWithCaller(t *testing.T) {
	conn := openTestDB(t)
	w := NewWriter(conn, nil)
	actor := "user-1"

	errTx := conn.Transaction(func(tx *gorm.DB) error {
		if errWrite := w.WriteTx(context.Background(), tx, Entry{ActorUserID: &actor, Action: ActionLogout}); errWrite != nil {
			return errWrite
		}
		return errors.New("abort")
	})
	require.Error(t, errTx)

	var count int64
	require.NoError(t, conn.Model(&models.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWrite_RejectsMissingAction(t *testing.T) {
	conn := openTestDB(t)
	w := NewWriter(conn, nil)
	assert.Error(t, w.Write(context.Background(), Entry{}))
}

func TestList_NewestFirstWithActor(t *testing.T) {
	conn := openTestDB(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	w := NewWriter(conn, func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	user := models.User{ID: "u-1", Email: "alice@example.com", Name: "Alice", Role: models.RoleMember, Status: models.StatusActive, PasswordHash: "x"}
	require.NoError(t, conn.Create(&user).Error)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, Entry{ActorUserID: &user.ID, Action: ActionLoginSuccess}))
	require.NoError(t, w.Write(ctx, Entry{ActorUserID: &user.ID, Action: ActionLogout}))

	records, err := w.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ActionLogout, records[0].Action)
	assert.Equal(t, "alice@example.com", records[0].ActorEmail)
	assert.Equal(t, "Alice", records[1].ActorName)
}
