package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/domain"
	"github.com/hearthly/hearth/internal/store/memstore"
)

func TestExchangeRecorder_RecordTurn(t *testing.T) {
	params := func() domain.RecordTurnParams {
		return domain.RecordTurnParams{
			ConversationID:  "conv-1",
			UserMessageID:   "user-msg-1",
			UserText:        "Hello",
			UserTokens:      2,
			AssistantText:   "Hi there!",
			AssistantTokens: 3,
			Provider:        "test-provider",
			Model:           "test-model",
		}
	}

	t.Run("should persist both messages and move aggregates once", func(t *testing.T) {
		store := memstore.NewStore()
		recorder := domain.NewExchangeRecorder(store)
		ctx := context.Background()

		turn, err := recorder.RecordTurn(ctx, params())

		require.NoError(t, err)
		require.NotNil(t, turn)
		require.Equal(t, "user-msg-1", turn.UserMessage.ID)
		require.Equal(t, domain.RoleUser, turn.UserMessage.Role)
		require.Equal(t, domain.RoleAssistant, turn.AssistantMessage.Role)
		require.Equal(t, "test-provider", turn.Provider)

		msgs, err := store.RecentMessages(ctx, "conv-1", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		require.Equal(t, "Hello", msgs[0].Content)
		require.Equal(t, "Hi there!", msgs[1].Content)

		agg, err := store.Aggregate(ctx, "conv-1")
		require.NoError(t, err)
		require.Equal(t, int64(2), agg.MessageCount)
		require.Equal(t, int64(5), agg.TokenTotal)
	})

	t.Run("should clear the pending marker as part of the commit", func(t *testing.T) {
		store := memstore.NewStore()
		recorder := domain.NewExchangeRecorder(store)
		ctx := context.Background()

		require.NoError(t, store.SavePending(ctx, &domain.StoredMessage{
			ID:             "user-msg-1",
			ConversationID: "conv-1",
			Role:           domain.RoleUser,
			Content:        "Hello",
		}))

		_, err := recorder.RecordTurn(ctx, params())
		require.NoError(t, err)

		_, err = store.PendingMessage(ctx, "conv-1")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("should rewrite the provisional message instead of duplicating it", func(t *testing.T) {
		store := memstore.NewStore()
		recorder := domain.NewExchangeRecorder(store)
		ctx := context.Background()

		require.NoError(t, store.SavePending(ctx, &domain.StoredMessage{
			ID:             "user-msg-1",
			ConversationID: "conv-1",
			Role:           domain.RoleUser,
			Content:        "Hello",
		}))

		_, err := recorder.RecordTurn(ctx, params())
		require.NoError(t, err)

		msgs, err := store.RecentMessages(ctx, "conv-1", 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
	})

	t.Run("should apply nothing when the commit fails", func(t *testing.T) {
		store := memstore.NewStore()
		recorder := domain.NewExchangeRecorder(store)
		ctx := context.Background()
		store.FailExchanges(errors.New("store offline"))

		turn, err := recorder.RecordTurn(ctx, params())

		require.Error(t, err)
		require.Nil(t, turn)
		var persistenceErr *domain.PersistenceError
		require.ErrorAs(t, err, &persistenceErr)

		msgs, err := store.RecentMessages(ctx, "conv-1", 10)
		require.NoError(t, err)
		require.Empty(t, msgs)

		agg, err := store.Aggregate(ctx, "conv-1")
		require.NoError(t, err)
		require.Equal(t, int64(0), agg.MessageCount)
		require.Equal(t, int64(0), agg.TokenTotal)
	})

	t.Run("should generate a user message id when none is supplied", func(t *testing.T) {
		store := memstore.NewStore()
		recorder := domain.NewExchangeRecorder(store)

		p := params()
		p.UserMessageID = ""
		turn, err := recorder.RecordTurn(context.Background(), p)

		require.NoError(t, err)
		require.NotEmpty(t, turn.UserMessage.ID)
	})

	t.Run("should reject incomplete exchanges", func(t *testing.T) {
		store := memstore.NewStore()
		recorder := domain.NewExchangeRecorder(store)
		ctx := context.Background()

		for _, mutate := range []func(*domain.RecordTurnParams){
			func(p *domain.RecordTurnParams) { p.ConversationID = "" },
			func(p *domain.RecordTurnParams) { p.UserText = "" },
			func(p *domain.RecordTurnParams) { p.AssistantText = "" },
		} {
			p := params()
			mutate(&p)

			turn, err := recorder.RecordTurn(ctx, p)
			require.Error(t, err)
			require.Nil(t, turn)
		}
	})
}
