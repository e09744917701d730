package history

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type stubAgent struct {
	reply      string
	err        error
	lastQuery  string
	lastThread string
	calls      int
}

func (a *stubAgent) Run(ctx context.Context, query, threadID string) (string, error) {
	_ = ctx
	a.calls++
	a.lastQuery = query
	a.lastThread = threadID
	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}, &TurnJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, agent Agent) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	if agent == nil {
		agent = &stubAgent{reply: "ok"}
	}
	return NewService(NewRepo(db), agent, zerolog.Nop()), db
}

func activeCount(t *testing.T, db *gorm.DB, userID uint64) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&Conversation{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&n).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	return n
}

func TestStartNewConversation_DeactivatesPrevious(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	if !first.IsActive {
		t.Fatalf("expected first conversation active")
	}

	second, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if !second.IsActive {
		t.Fatalf("expected second conversation active")
	}

	var reloaded Conversation
	if err := db.Where("conversation_id = ?", first.ConversationID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload first: %v", err)
	}
	if reloaded.IsActive {
		t.Fatalf("expected first conversation deactivated")
	}
	if n := activeCount(t, db, 1); n != 1 {
		t.Fatalf("expected exactly 1 active conversation, got %d", n)
	}
}

func TestGetOrCreateActive(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.GetOrCreateActive(ctx, 7)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !created.IsActive {
		t.Fatalf("expected created conversation active")
	}

	again, err := svc.GetOrCreateActive(ctx, 7)
	if err != nil {
		t.Fatalf("get or create again: %v", err)
	}
	if again.ConversationID != created.ConversationID {
		t.Fatalf("expected same conversation, got %s and %s", created.ConversationID, again.ConversationID)
	}
	if n := activeCount(t, db, 7); n != 1 {
		t.Fatalf("expected 1 active conversation, got %d", n)
	}
}

func TestResumeConversation(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	old, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start old: %v", err)
	}
	if _, err := svc.AppendTurn(ctx, old.ConversationID, RoleHuman, "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := svc.AppendTurn(ctx, old.ConversationID, RoleAI, "hi there"); err != nil {
		t.Fatalf("append: %v", err)
	}

	current, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start current: %v", err)
	}

	hist, err := svc.ResumeConversation(ctx, 1, old.ConversationID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !hist.IsActive {
		t.Fatalf("expected resumed conversation active")
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("expected 2 messages after resume, got %d", len(hist.Messages))
	}

	var other Conversation
	if err := db.Where("conversation_id = ?", current.ConversationID).First(&other).Error; err != nil {
		t.Fatalf("reload current: %v", err)
	}
	if other.IsActive {
		t.Fatalf("expected previously active conversation deactivated")
	}
	if n := activeCount(t, db, 1); n != 1 {
		t.Fatalf("expected 1 active conversation, got %d", n)
	}
}

func TestResumeConversation_NotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.ResumeConversation(ctx, 1, "01MISSING0000000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// another user's conversation resolves as missing too
	conv, err := svc.StartNewConversation(ctx, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.ResumeConversation(ctx, 1, conv.ConversationID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign conversation, got %v", err)
	}
}

func TestExitConversation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	conv, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	exited, err := svc.ExitConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if exited.IsActive {
		t.Fatalf("expected conversation inactive after exit")
	}

	if _, err := svc.ExitConversation(ctx, "01MISSING0000000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivateConversation_KeepsInvariant(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	a, _ := svc.StartNewConversation(ctx, 1)
	b, _ := svc.StartNewConversation(ctx, 1)

	if _, err := svc.ActivateConversation(ctx, a.ConversationID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	var cur Conversation
	if err := db.Where("conversation_id = ?", b.ConversationID).First(&cur).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cur.IsActive {
		t.Fatalf("expected other conversation deactivated")
	}
	if n := activeCount(t, db, 1); n != 1 {
		t.Fatalf("expected 1 active conversation, got %d", n)
	}
}

func TestAppendTurnAndGetHistory_Ordered(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	conv, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	contents := []string{"first", "second", "third"}
	for i, content := range contents {
		role := RoleHuman
		if i%2 == 1 {
			role = RoleAI
		}
		if _, err := svc.AppendTurn(ctx, conv.ConversationID, role, content); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	hist, err := svc.GetHistory(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist.Messages) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(hist.Messages))
	}
	for i, m := range hist.Messages {
		if m.Content != contents[i] {
			t.Fatalf("message %d out of order: got %q want %q", i, m.Content, contents[i])
		}
	}

	if _, err := svc.AppendTurn(ctx, "01MISSING0000000000000000", RoleHuman, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunAgentTurn_AppendsBothSides(t *testing.T) {
	ag := &stubAgent{reply: "the news is good"}
	svc, db := newTestService(t, ag)
	ctx := context.Background()

	conv, msgs, err := svc.RunAgentTurn(ctx, 1, "hi how are you?")
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if ag.lastThread != conv.ConversationID {
		t.Fatalf("expected thread id %s, got %s", conv.ConversationID, ag.lastThread)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleHuman || msgs[0].Content != "hi how are you?" {
		t.Fatalf("unexpected human msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAI || msgs[1].Content != "the news is good" {
		t.Fatalf("unexpected ai msg: role=%q content=%q", msgs[1].Role, msgs[1].Content)
	}

	var count int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", conv.ConversationID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", count)
	}
}

func TestRunAgentTurn_AgentFailurePersistsNothing(t *testing.T) {
	ag := &stubAgent{err: errors.New("search backend down")}
	svc, db := newTestService(t, ag)
	ctx := context.Background()

	if _, _, err := svc.RunAgentTurn(ctx, 1, "anything"); err == nil {
		t.Fatalf("expected error from agent")
	}

	var count int64
	if err := db.Model(&Message{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no messages persisted on agent failure, got %d", count)
	}
}

func TestRunAgentTurnOnConversation_Ownership(t *testing.T) {
	svc, _ := newTestService(t, &stubAgent{reply: "ok"})
	ctx := context.Background()

	conv, err := svc.StartNewConversation(ctx, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.RunAgentTurnOnConversation(ctx, 1, conv.ConversationID, "q"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign conversation, got %v", err)
	}

	aiMsgID, err := svc.RunAgentTurnOnConversation(ctx, 2, conv.ConversationID, "q")
	if err != nil {
		t.Fatalf("run on conversation: %v", err)
	}
	if aiMsgID == 0 {
		t.Fatalf("expected ai message id")
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	conv, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.AppendTurn(ctx, conv.ConversationID, RoleHuman, "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := svc.DeleteConversation(ctx, conv.ConversationID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.GetHistory(ctx, conv.ConversationID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	var count int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", conv.ConversationID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected messages deleted, got %d", count)
	}

	if err := svc.DeleteConversation(ctx, conv.ConversationID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUpdateMessage(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	conv, err := svc.StartNewConversation(ctx, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	msg, err := svc.AppendTurn(ctx, conv.ConversationID, RoleHuman, "original")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	updated, err := svc.UpdateMessage(ctx, 1, msg.ID, "edited")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "edited" {
		t.Fatalf("expected edited content, got %q", updated.Content)
	}
	if updated.Role != RoleHuman || updated.ConversationID != conv.ConversationID {
		t.Fatalf("role or conversation changed: role=%q conv=%q", updated.Role, updated.ConversationID)
	}

	if _, err := svc.UpdateMessage(ctx, 99, msg.ID, "nope"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	if _, err := svc.UpdateMessage(ctx, 1, 123456, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing message, got %v", err)
	}
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	key := "client-key-1"
	j1 := &TurnJob{ID: "01JOB00000000000000000000A", UserID: 1, ConversationID: "c1", Query: "q", IdempotencyKey: &key, Status: JobQueued}
	got1, created1, err := svc.CreateJobOrGetExisting(ctx, j1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created1 {
		t.Fatalf("expected first job created")
	}

	j2 := &TurnJob{ID: "01JOB00000000000000000000B", UserID: 1, ConversationID: "c1", Query: "q", IdempotencyKey: &key, Status: JobQueued}
	got2, created2, err := svc.CreateJobOrGetExisting(ctx, j2)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if created2 {
		t.Fatalf("expected second job deduplicated")
	}
	if got2.ID != got1.ID {
		t.Fatalf("expected same job id, got %s and %s", got1.ID, got2.ID)
	}
}
