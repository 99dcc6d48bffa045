package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/baogate/internal/domain"
	"github.com/soyeahso/baogate/internal/hooks"
	"github.com/soyeahso/baogate/internal/llm"
	"github.com/soyeahso/baogate/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func testRegistry(mock llm.Client) *llm.Registry {
	reg := llm.NewRegistry(silentLog())
	reg.Register("mock", mock)
	reg.SetFallback("mock")
	return reg
}

func testRunnerConfig(policy TrailingModelTurnPolicy) RunnerConfig {
	return RunnerConfig{
		Model:              "mock-model",
		Tools:              []string{llm.ToolGoogleSearch},
		SystemInstruction:  "default persona",
		RevivalInstruction: "room is {room}",
		DefaultRoom:        "그룹",
		DefaultAuthor:      "사용자",
		Normalize:          testNormalizeOptions(policy),
	}
}

func echoClient() *llm.MockClient {
	return &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			last := req.Messages[len(req.Messages)-1]
			return &llm.CompletionResponse{Content: "echo " + last.Content, Model: "mock-model"}, nil
		},
	}
}

func newTestRunner(t *testing.T, client llm.Client, policy TrailingModelTurnPolicy) (*Runner, *MemorySessionStore) {
	t.Helper()
	store := NewMemorySessionStore()
	return NewRunner(testRunnerConfig(policy), testRegistry(client), store, nil, silentLog()), store
}

func turnCount(t *testing.T, store SessionStore, channel string) int {
	t.Helper()
	sess, err := store.Get(channel)
	require.NoError(t, err)
	return len(sess.Turns)
}

func TestRunner_FeedCreatesSessionWithTwoTurns(t *testing.T) {
	var gotReq llm.CompletionRequest
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			gotReq = req
			return &llm.CompletionResponse{Content: "ignored reply"}, nil
		},
	}
	runner, store := newTestRunner(t, client, TrailingKeep)

	err := runner.Feed(context.Background(), domain.Utterance{ChannelID: "c2", AuthorName: "Bob", Content: "hey"})
	require.NoError(t, err)

	assert.Equal(t, "default persona", gotReq.System)
	assert.Equal(t, []string{llm.ToolGoogleSearch}, gotReq.Tools)
	assert.Equal(t, "mock-model", gotReq.Model)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "Bob: hey"}}, gotReq.Messages)

	sess, err := store.Get("c2")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, domain.UserTurn("Bob", "hey").Text, sess.Turns[0].Text)
	assert.Equal(t, domain.RoleModel, sess.Turns[1].Role)
	assert.Equal(t, "ignored reply", sess.Turns[1].Text)
}

func TestRunner_TwoFeedsShareOneSession(t *testing.T) {
	runner, store := newTestRunner(t, echoClient(), TrailingKeep)
	ctx := context.Background()

	require.NoError(t, runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "one"}))
	require.NoError(t, runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "B", Content: "two"}))

	assert.Equal(t, 4, turnCount(t, store, "c1"))
}

func TestRunner_RespondReturnsReplyAndHistory(t *testing.T) {
	var seen []llm.Message
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			seen = req.Messages
			return &llm.CompletionResponse{Content: "반가워요", Usage: llm.Usage{OutputTokens: 3}}, nil
		},
	}
	runner, _ := newTestRunner(t, client, TrailingKeep)
	fixed := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	runner.now = func() time.Time { return fixed }

	ctx := context.Background()
	require.NoError(t, runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "first"}))

	reply, err := runner.Respond(ctx, domain.Utterance{ChannelID: "c1", Content: "안녕"})
	require.NoError(t, err)
	assert.Equal(t, "반가워요", reply.Text)
	assert.Equal(t, fixed, reply.Timestamp)
	assert.Equal(t, 3, reply.Usage.OutputTokens)
	assert.NotEmpty(t, reply.SessionID)

	require.Len(t, seen, 3)
	assert.Equal(t, llm.RoleModel, seen[1].Role)
	assert.Equal(t, "사용자: 안녕", seen[2].Content)
}

func TestRunner_ProviderErrorLeavesHistoryUntouched(t *testing.T) {
	var fail atomic.Bool
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if fail.Load() {
				return nil, &llm.ProviderError{Provider: "mock", Code: 503, Message: "overloaded"}
			}
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	runner, store := newTestRunner(t, client, TrailingKeep)
	ctx := context.Background()

	require.NoError(t, runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "x"}))

	fail.Store(true)
	_, err := runner.Respond(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "y"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	var perr *llm.ProviderError
	assert.ErrorAs(t, err, &perr)
	assert.False(t, IsValidation(err))

	assert.Equal(t, 2, turnCount(t, store, "c1"))
}

func TestRunner_CancelDuringProviderCallCommitsNothing(t *testing.T) {
	started := make(chan struct{})
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	runner, store := newTestRunner(t, client, TrailingKeep)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "x"})
	}()
	<-started
	cancel()

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, turnCount(t, store, "c1"))
}

func TestRunner_LateReplyAfterCancelIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			cancel()
			return &llm.CompletionResponse{Content: "too late"}, nil
		},
	}
	runner, store := newTestRunner(t, client, TrailingKeep)

	err := runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, turnCount(t, store, "c1"))
}

func TestRunner_ConcurrentFeedsSameChannel(t *testing.T) {
	var active, maxActive atomic.Int32
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return &llm.CompletionResponse{Content: "ack"}, nil
		},
	}
	runner, store := newTestRunner(t, client, TrailingKeep)

	var wg sync.WaitGroup
	for _, author := range []string{"A", "B"} {
		wg.Add(1)
		go func(author string) {
			defer wg.Done()
			assert.NoError(t, runner.Feed(context.Background(), domain.Utterance{ChannelID: "c1", AuthorName: author, Content: "hi"}))
		}(author)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	sess, err := store.Get("c1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 4)
	roles := []domain.Role{sess.Turns[0].Role, sess.Turns[1].Role, sess.Turns[2].Role, sess.Turns[3].Role}
	assert.Equal(t, []domain.Role{domain.RoleUser, domain.RoleModel, domain.RoleUser, domain.RoleModel}, roles)
}

func TestRunner_DifferentChannelsRunInParallel(t *testing.T) {
	release := make(chan struct{})
	var inFlight sync.WaitGroup
	inFlight.Add(2)
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			inFlight.Done()
			<-release
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	runner, _ := newTestRunner(t, client, TrailingKeep)

	var wg sync.WaitGroup
	for _, ch := range []string{"a", "b"} {
		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			assert.NoError(t, runner.Feed(context.Background(), domain.Utterance{ChannelID: ch, AuthorName: "U", Content: "x"}))
		}(ch)
	}

	done := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("calls on different channels were serialised")
	}
	close(release)
	wg.Wait()
}

func TestRunner_Revive(t *testing.T) {
	for _, tt := range []struct {
		policy    TrailingModelTurnPolicy
		wantCount int
	}{
		{TrailingKeep, 2},
		{TrailingDrop, 1},
	} {
		t.Run(string(tt.policy), func(t *testing.T) {
			runner, store := newTestRunner(t, echoClient(), tt.policy)
			ctx := context.Background()

			// Pre-existing history must be discarded.
			require.NoError(t, runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "Old", Content: "stale"}))

			n, err := runner.Revive(ctx, RevivalRequest{
				ChannelID: "c1",
				RoomName:  "Test",
				History: []domain.HistoryMessage{
					{AuthorName: "Alice", Content: "hi"},
					{AuthorName: "바오", Content: "hello"},
				},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, n)

			sess, err := store.Get("c1")
			require.NoError(t, err)
			assert.Equal(t, "room is Test", sess.SystemInstruction)
			assert.Equal(t, []string{llm.ToolGoogleSearch}, sess.Tools)
			assert.Len(t, sess.Turns, tt.wantCount)

			_, err = runner.Respond(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "hi"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount+2, turnCount(t, store, "c1"))
		})
	}
}

func TestRunner_ReviveUsesRevivedInstruction(t *testing.T) {
	var system string
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			system = req.System
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	runner, _ := newTestRunner(t, client, TrailingKeep)
	ctx := context.Background()

	_, err := runner.Revive(ctx, RevivalRequest{ChannelID: "c1", History: []domain.HistoryMessage{}})
	require.NoError(t, err)
	require.NoError(t, runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "x"}))
	assert.Equal(t, "room is 그룹", system)
}

func TestRunner_ReviveValidation(t *testing.T) {
	runner, store := newTestRunner(t, echoClient(), TrailingKeep)

	tests := []struct {
		name string
		req  RevivalRequest
	}{
		{"missing channel", RevivalRequest{History: []domain.HistoryMessage{}}},
		{"missing history", RevivalRequest{ChannelID: "c1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runner.Revive(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}

	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRunner_NoProvider(t *testing.T) {
	store := NewMemorySessionStore()
	runner := NewRunner(testRunnerConfig(TrailingKeep), llm.NewRegistry(silentLog()), store, nil, silentLog())

	err := runner.Feed(context.Background(), domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "x"})
	assert.ErrorIs(t, err, ErrProvider)
}

type failingStore struct {
	*MemorySessionStore
}

func (f failingStore) AppendExchange(string, string, domain.Turn, domain.Turn) error {
	return errors.New("disk full")
}

func TestRunner_StoreFailureIsInternal(t *testing.T) {
	runner := NewRunner(testRunnerConfig(TrailingKeep), testRegistry(echoClient()),
		failingStore{NewMemorySessionStore()}, nil, silentLog())

	err := runner.Feed(context.Background(), domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProvider)
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunner_EmitsHooks(t *testing.T) {
	mgr := hooks.NewManager(silentLog())
	events := make(chan string, 8)
	for _, e := range []string{hooks.EventSessionCreated, hooks.EventExchangeCompleted, hooks.EventSessionRevived} {
		mgr.On(e, "test", func(_ context.Context, p hooks.Payload) error {
			events <- p.Event
			return nil
		})
	}

	runner := NewRunner(testRunnerConfig(TrailingKeep), testRegistry(echoClient()), NewMemorySessionStore(), mgr, silentLog())
	ctx := context.Background()
	require.NoError(t, runner.Feed(ctx, domain.Utterance{ChannelID: "c1", AuthorName: "A", Content: "x"}))
	_, err := runner.Revive(ctx, RevivalRequest{ChannelID: "c1", History: []domain.HistoryMessage{}})
	require.NoError(t, err)

	got := map[string]bool{}
	for range 3 {
		select {
		case e := <-events:
			got[e] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for hook events")
		}
	}
	assert.True(t, got[hooks.EventSessionCreated])
	assert.True(t, got[hooks.EventExchangeCompleted])
	assert.True(t, got[hooks.EventSessionRevived])
}
