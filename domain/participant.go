// Package domain contains core concepts of the messaging system.
// This file defines participant identifiers and the conversation key they derive.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"bytes"
	"fmt"
	"skill-chat/errors"
	"strings"

	"github.com/google/uuid"
)

// UserID is the opaque identifier resolved by the external identity collaborator.
type UserID string

func (u UserID) String() string { return string(u) }

// KeySeparator joins the two ordered participants of a conversation key.
const KeySeparator = "_"

// storageDelimiter is reserved by the persisted key layout.
const storageDelimiter = ":"

// Ordering is a stable total order over participant identifiers together
// with the canonical form it compares. Keys are always built from that form,
// so two spellings the order treats as equal yield the same conversation.
type Ordering interface {
	// Compare returns a negative number when a sorts before b, zero when equal.
	Compare(a, b UserID) int
	Canonical(id UserID) UserID
}

var (
	// LexicalOrdering compares identifiers byte-wise and keeps them as given.
	LexicalOrdering Ordering = lexicalOrdering{}
	// UUIDOrdering compares identifiers by their UUID bytes and canonicalizes
	// them to the lower-case hyphenated form. Identifiers that are not UUIDs
	// fall back to LexicalOrdering.
	UUIDOrdering Ordering = uuidOrdering{}
)

type lexicalOrdering struct{}

func (lexicalOrdering) Compare(a, b UserID) int {
	return strings.Compare(string(a), string(b))
}

func (lexicalOrdering) Canonical(id UserID) UserID { return id }

type uuidOrdering struct{}

func (uuidOrdering) Compare(a, b UserID) int {
	ua, errA := uuid.Parse(string(a))
	ub, errB := uuid.Parse(string(b))
	if errA != nil || errB != nil {
		return LexicalOrdering.Compare(a, b)
	}
	return bytes.Compare(ua[:], ub[:])
}

func (uuidOrdering) Canonical(id UserID) UserID {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return id
	}
	return UserID(u.String())
}

// ValidateUserID rejects identifiers that would make conversation keys ambiguous.
func ValidateUserID(id UserID) error {
	switch {
	case strings.TrimSpace(string(id)) == "":
		return fmt.Errorf("%w: empty identifier", errors.ErrInvalidParticipants)
	case strings.Contains(string(id), KeySeparator), strings.Contains(string(id), storageDelimiter):
		return fmt.Errorf("%w: identifier %q contains a reserved character", errors.ErrInvalidParticipants, id)
	}
	return nil
}

// OrderPair returns both identifiers in canonical form, smaller first
// according to ordering.
func OrderPair(a, b UserID, ordering Ordering) (UserID, UserID, error) {
	if ordering == nil {
		ordering = LexicalOrdering
	}
	a, b = ordering.Canonical(a), ordering.Canonical(b)
	if err := ValidateUserID(a); err != nil {
		return "", "", err
	}
	if err := ValidateUserID(b); err != nil {
		return "", "", err
	}
	switch c := ordering.Compare(a, b); {
	case c == 0:
		return "", "", fmt.Errorf("%w: participants must be distinct", errors.ErrInvalidParticipants)
	case c < 0:
		return a, b, nil
	default:
		return b, a, nil
	}
}

// ConversationKey derives the deterministic conversation id of an unordered pair.
// ConversationKey(a, b) == ConversationKey(b, a) for any distinct valid a and b.
func ConversationKey(a, b UserID, ordering Ordering) (ConversationID, error) {
	first, second, err := OrderPair(a, b, ordering)
	if err != nil {
		return "", err
	}
	return ConversationID(string(first) + KeySeparator + string(second)), nil
}
