package repo

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/deddy77/Moun-project/model"
)

var testRepo *Repository

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("moun_test"),
		postgres.WithUsername("moun"),
		postgres.WithPassword("moun"),
		postgres.BasicWaitStrategies(),
		postgres.WithSQLDriver("pgx"),
	)
	if err != nil {
		log.Printf("skipping repo tests, no container runtime: %v", err)
		os.Exit(0)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	testRepo = New(db)
	if err := testRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	code := m.Run()
	_ = db.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

var userSeq int

// seedUser creates a user with a unique username; tests share one database.
func seedUser(t *testing.T) int64 {
	t.Helper()
	userSeq++
	name := fmt.Sprintf("user%d_%d", userSeq, time.Now().UnixNano())
	id, err := testRepo.CreateUser(context.Background(), name, name+"@example.com", name, "hash")
	require.NoError(t, err)
	return id
}

func TestCreateUserUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	_, err := testRepo.CreateUser(ctx, "dupuser", "dupuser@example.com", "x", "hash")
	require.NoError(t, err)

	_, err = testRepo.CreateUser(ctx, "dupuser", "fresh@example.com", "x", "hash")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = testRepo.CreateUser(ctx, "freshuser", "dupuser@example.com", "x", "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := seedUser(t)

	require.NoError(t, testRepo.CreateSession(ctx, userID, "tok-live", time.Now().Add(time.Hour)))
	got, err := testRepo.GetSessionUserID(ctx, "tok-live")
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	require.NoError(t, testRepo.CreateSession(ctx, userID, "tok-expired", time.Now().Add(-time.Minute)))
	_, err = testRepo.GetSessionUserID(ctx, "tok-expired")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, testRepo.DeleteSession(ctx, "tok-live"))
	_, err = testRepo.GetSessionUserID(ctx, "tok-live")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivityRoundTrip(t *testing.T) {
	ctx := context.Background()
	userID := seedUser(t)

	u, err := testRepo.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, u.LastActivity)

	require.NoError(t, testRepo.TouchActivity(ctx, userID))
	u, err = testRepo.GetUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, u.LastActivity)
	assert.WithinDuration(t, time.Now(), *u.LastActivity, 5*time.Second)

	require.NoError(t, testRepo.ClearActivity(ctx, userID))
	u, err = testRepo.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, u.LastActivity)
}

func TestFollowConstraints(t *testing.T) {
	ctx := context.Background()
	alice := seedUser(t)
	bob := seedUser(t)

	assert.ErrorIs(t, testRepo.CreateFollow(ctx, alice, alice), ErrSelfFollow)

	require.NoError(t, testRepo.CreateFollow(ctx, alice, bob))
	// Duplicate follow is absorbed.
	require.NoError(t, testRepo.CreateFollow(ctx, alice, bob))

	following, err := testRepo.IsFollowing(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, following)

	followers, _, err := testRepo.FollowCounts(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), followers)

	require.NoError(t, testRepo.DeleteFollow(ctx, alice, bob))
	following, err = testRepo.IsFollowing(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestMutualFollowers(t *testing.T) {
	ctx := context.Background()
	alice := seedUser(t)
	bob := seedUser(t)
	carol := seedUser(t)

	require.NoError(t, testRepo.CreateFollow(ctx, alice, bob))
	require.NoError(t, testRepo.CreateFollow(ctx, bob, alice))
	require.NoError(t, testRepo.CreateFollow(ctx, carol, alice))

	mutuals, err := testRepo.MutualFollowers(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mutuals, 1)
	assert.Equal(t, bob, mutuals[0].ID)
}

func TestGetOrCreateConversationConcurrent(t *testing.T) {
	ctx := context.Background()
	alice := seedUser(t)
	bob := seedUser(t)

	const racers = 8
	ids := make([]int64, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate argument order; the pair is normalized either way.
			a, b := alice, bob
			if i%2 == 1 {
				a, b = bob, alice
			}
			conv, _, err := testRepo.GetOrCreateConversation(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < racers; i++ {
		assert.Equal(t, ids[0], ids[i], "all racers converge on one conversation")
	}
}

func TestDirectMessageUnreadLifecycle(t *testing.T) {
	ctx := context.Background()
	alice := seedUser(t)
	bob := seedUser(t)

	conv, created, err := testRepo.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, created)

	for i := 0; i < 2; i++ {
		msg := &model.DirectMessage{ConversationID: conv.ID, SenderID: alice, Body: "hey", FileType: model.FileText}
		require.NoError(t, testRepo.CreateDirectMessage(ctx, msg))
		assert.NotZero(t, msg.ID)
		assert.False(t, msg.IsRead)
	}

	count, err := testRepo.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = testRepo.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, testRepo.MarkConversationRead(ctx, conv.ID, bob))
	count, err = testRepo.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReplyResolutionStaysInConversation(t *testing.T) {
	ctx := context.Background()
	alice := seedUser(t)
	bob := seedUser(t)
	carol := seedUser(t)

	conv, _, err := testRepo.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)
	other, _, err := testRepo.GetOrCreateConversation(ctx, alice, carol)
	require.NoError(t, err)

	msg := &model.DirectMessage{ConversationID: conv.ID, SenderID: alice, Body: "original", FileType: model.FileText}
	require.NoError(t, testRepo.CreateDirectMessage(ctx, msg))

	ref, err := testRepo.ResolveReply(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, ref.ID)
	assert.Equal(t, "original", ref.Body)

	_, err = testRepo.ResolveReply(ctx, other.ID, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsInboxShape(t *testing.T) {
	ctx := context.Background()
	alice := seedUser(t)
	bob := seedUser(t)

	conv, _, err := testRepo.GetOrCreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	first := &model.DirectMessage{ConversationID: conv.ID, SenderID: alice, Body: "first", FileType: model.FileText}
	require.NoError(t, testRepo.CreateDirectMessage(ctx, first))
	second := &model.DirectMessage{ConversationID: conv.ID, SenderID: alice, Body: "second", FileType: model.FileText}
	require.NoError(t, testRepo.CreateDirectMessage(ctx, second))

	summaries, err := testRepo.ListConversations(ctx, bob)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	row := summaries[0]
	assert.Equal(t, conv.ID, row.Conversation.ID)
	assert.Equal(t, alice, row.Peer.ID)
	assert.Equal(t, int64(2), row.UnreadCount)
	require.NotNil(t, row.LastMessage)
	assert.Equal(t, second.ID, row.LastMessage.ID)
	assert.Equal(t, "second", row.LastMessage.Body)
}

func TestRoomsAndTopics(t *testing.T) {
	ctx := context.Background()
	host := seedUser(t)

	topicID, err := testRepo.GetOrCreateTopic(ctx, "repo-topic")
	require.NoError(t, err)
	again, err := testRepo.GetOrCreateTopic(ctx, "repo-topic")
	require.NoError(t, err)
	assert.Equal(t, topicID, again)

	roomID, err := testRepo.CreateRoom(ctx, host, topicID, "repo room", "desc")
	require.NoError(t, err)
	require.NoError(t, testRepo.AddParticipant(ctx, roomID, host))

	room, err := testRepo.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "repo-topic", room.TopicName)

	msg, err := testRepo.CreateRoomMessage(ctx, roomID, host, "hello")
	require.NoError(t, err)
	assert.Equal(t, "repo room", msg.RoomName)

	messages, err := testRepo.ListRoomMessages(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.NoError(t, testRepo.DeleteRoom(ctx, roomID))
	_, err = testRepo.GetRoom(ctx, roomID)
	assert.ErrorIs(t, err, ErrNotFound)
	messages, err = testRepo.ListRoomMessages(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, messages, "room messages cascade")
}
