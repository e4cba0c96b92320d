package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	dbutil "github.com/bizstudio/portal/internal/db"
	"github.com/bizstudio/portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Action names recorded in the audit log.
const (
	ActionLoginSuccess              = "LOGIN_SUCCESS"
	ActionLoginFailed               = "LOGIN_FAILED"
	ActionLogout                    = "LOGOUT"
	ActionInviteCreated             = "INVITE_CREATED"
	ActionInviteConsumeFailed       = "INVITE_CONSUME_FAILED"
	ActionInviteConsumedUserCreated = "INVITE_CONSUMED_USER_CREATED"
	ActionIssueAppToken             = "ISSUE_APP_TOKEN"
	ActionVerifyAppToken            = "VERIFY_APP_TOKEN"
	ActionSetCredential             = "SET_CREDENTIAL"
	ActionDeleteCredential          = "DELETE_CREDENTIAL"
	ActionAdminSetCredential        = "ADMIN_SET_CREDENTIAL"
	ActionAdminDeleteCredential     = "ADMIN_DELETE_CREDENTIAL"
	ActionUserStatusChanged         = "USER_STATUS_CHANGED"
	ActionSystemCreated             = "SYSTEM_CREATED"
	ActionSystemUpdated             = "SYSTEM_UPDATED"
)

// Target types recorded in the audit log.
const (
	TargetAuth   = "AUTH"
	TargetUser   = "USER"
	TargetSystem = "SYSTEM"
)

// DefaultListLimit caps the admin audit viewer.
const DefaultListLimit = 200

// Entry describes one audit record to append. A nil ActorUserID records the anonymous sentinel.
type Entry struct {
	ActorUserID *string
	Action      string
	TargetType  string
	TargetID    *string
	Metadata    map[string]any
}

// Record is an audit row joined with its actor for display.
type Record struct {
	ID          string         `json:"id"`
	ActorUserID string         `json:"actor_user_id"`
	ActorEmail  string         `json:"actor_email"`
	ActorName   string         `json:"actor_name"`
	Action      string         `json:"action"`
	TargetType  string         `json:"target_type"`
	TargetID    *string        `json:"target_id"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Writer appends audit records. Safe for concurrent use.
type Writer struct {
	db    *gorm.DB
	nowFn func() time.Time

	mu          sync.Mutex
	anonymousID string
}

// NewWriter constructs a Writer over db.
func NewWriter(db *gorm.DB, nowFn func() time.Time) *Writer {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Writer{db: db, nowFn: nowFn}
}

// Write appends entry using the writer's own connection.
func (w *Writer) Write(ctx context.Context, entry Entry) error {
	return w.WriteTx(ctx, w.db, entry)
}

// WriteTx appends entry within tx so it commits or rolls back with the audited change.
func (w *Writer) WriteTx(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if w == nil || tx == nil {
		return errors.New("audit: nil writer")
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("audit: missing action")
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = TargetAuth
	}

	actorID := ""
	if entry.ActorUserID != nil {
		actorID = strings.TrimSpace(*entry.ActorUserID)
	}
	if actorID != "" {
		var n int64
		if errCount := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", actorID).Count(&n).Error; errCount != nil {
			return fmt.Errorf("audit: resolve actor: %w", errCount)
		}
		if n == 0 {
			actorID = ""
		}
	}
	if actorID == "" {
		anonymousID, errAnon := w.anonymousActor(ctx, tx)
		if errAnon != nil {
			return errAnon
		}
		actorID = anonymousID
	}

	var metadata datatypes.JSON
	if len(entry.Metadata) > 0 {
		payload, errMarshal := json.Marshal(entry.Metadata)
		if errMarshal != nil {
			return fmt.Errorf("audit: marshal metadata: %w", errMarshal)
		}
		metadata = datatypes.JSON(payload)
	}

	row := models.AuditLog{
		ID:          uuid.NewString(),
		ActorUserID: actorID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    entry.TargetID,
		Metadata:    metadata,
		CreatedAt:   w.nowFn(),
	}
	if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("audit: write %s: %w", action, errCreate)
	}
	return nil
}

// List returns the newest records first, joined with actor email and name.
func (w *Writer) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	var records []Record
	errFind := w.db.WithContext(ctx).
		Table("audit_logs").
		Select("audit_logs.id, audit_logs.actor_user_id, users.email AS actor_email, users.name AS actor_name, " +
			"audit_logs.action, audit_logs.target_type, audit_logs.target_id, audit_logs.metadata, audit_logs.created_at").
		Joins("LEFT JOIN users ON users.id = audit_logs.actor_user_id").
		Order("audit_logs.created_at DESC").
		Limit(limit).
		Scan(&records).Error
	if errFind != nil {
		return nil, fmt.Errorf("audit: list: %w", errFind)
	}
	return records, nil
}

func (w *Writer) anonymousActor(ctx context.Context, tx *gorm.DB) (string, error) {
	w.mu.Lock()
	cached := w.anonymousID
	w.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	id, errEnsure := dbutil.EnsureAnonymousUser(tx.WithContext(ctx))
	if errEnsure != nil {
		return "", fmt.Errorf("audit: resolve anonymous actor: %w", errEnsure)
	}
	// A row created inside a caller transaction may still roll back.
	if tx == w.db {
		w.mu.Lock()
		w.anonymousID = id
		w.mu.Unlock()
	}
	return id, nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
