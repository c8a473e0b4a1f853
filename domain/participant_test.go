package domain

import (
	"strings"
	"testing"

	"skill-chat/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConversationKey_IsSymmetric(t *testing.T) {
	req := require.New(t)
	pairs := [][2]UserID{
		{"alice", "bob"},
		{"bob", "alice"},
		{"Z", "a"},
		{UserID(uuid.NewString()), UserID(uuid.NewString())},
	}
	for _, p := range pairs {
		ab, err := ConversationKey(p[0], p[1], LexicalOrdering)
		req.NoError(err)
		ba, err := ConversationKey(p[1], p[0], LexicalOrdering)
		req.NoError(err)
		req.Equal(ab, ba)
	}
}

func TestConversationKey_SmallerFirst(t *testing.T) {
	req := require.New(t)
	key, err := ConversationKey("bob", "alice", nil)
	req.NoError(err)
	req.Equal(ConversationID("alice_bob"), key)
}

func TestConversationKey_RejectsInvalidPairs(t *testing.T) {
	tests := []struct {
		name string
		a, b UserID
	}{
		{"same identifier", "alice", "alice"},
		{"empty identifier", "", "bob"},
		{"blank identifier", "  ", "bob"},
		{"separator inside identifier", "al_ice", "bob"},
		{"storage delimiter inside identifier", "alice", "b:ob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConversationKey(tt.a, tt.b, LexicalOrdering)
			require.ErrorIs(t, err, errors.ErrInvalidParticipants)
		})
	}
}

func TestUUIDOrdering_IgnoresTextualCase(t *testing.T) {
	req := require.New(t)
	a := uuid.New().String()
	b := uuid.New().String()

	// When the same pair is spelled in different cases
	lower, err := ConversationKey(UserID(a), UserID(b), UUIDOrdering)
	req.NoError(err)
	mixed, err := ConversationKey(UserID(strings.ToUpper(b)), UserID(strings.ToUpper(a)), UUIDOrdering)
	req.NoError(err)

	// Then both resolve to one conversation built from the canonical form
	req.Equal(lower, mixed)
	req.Equal(strings.ToLower(string(mixed)), string(mixed))
}

func TestUUIDOrdering_Same_UUID_In_Two_Cases_Is_One_Participant(t *testing.T) {
	req := require.New(t)
	id := uuid.New().String()

	_, err := ConversationKey(UserID(id), UserID(strings.ToUpper(id)), UUIDOrdering)

	req.ErrorIs(err, errors.ErrInvalidParticipants)
}

func TestOrderPair_Returns_Canonical_Identifiers(t *testing.T) {
	req := require.New(t)
	a, b := uuid.New(), uuid.New()

	first, second, err := OrderPair(UserID(strings.ToUpper(a.String())), UserID(b.String()), UUIDOrdering)
	req.NoError(err)
	req.ElementsMatch([]UserID{UserID(a.String()), UserID(b.String())}, []UserID{first, second})

	// Lexical ordering keeps identifiers exactly as given
	first, second, err = OrderPair("Bob", "alice", LexicalOrdering)
	req.NoError(err)
	req.Equal(UserID("Bob"), first)
	req.Equal(UserID("alice"), second)
}

func TestUUIDOrdering_FallsBackToLexical(t *testing.T) {
	req := require.New(t)
	req.Negative(UUIDOrdering.Compare("alice", "bob"))
	req.Positive(UUIDOrdering.Compare("bob", "alice"))
	req.Equal(UserID("alice"), UUIDOrdering.Canonical("alice"))
}

func TestConversation_Peer(t *testing.T) {
	req := require.New(t)
	c := Conversation{ID: "alice_bob", Participants: [2]UserID{"alice", "bob"}}

	peer, ok := c.Peer("alice")
	req.True(ok)
	req.Equal(UserID("bob"), peer)

	_, ok = c.Peer("mallory")
	req.False(ok)
	req.False(c.HasParticipant("mallory"))
}
