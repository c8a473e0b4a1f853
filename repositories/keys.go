package repositories

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"skill-chat/domain"
	"skill-chat/errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key layout:
//
//	conv:{conversationID}                       conversation record
//	idx:user:{userID}:{conversationID}          participant index, empty value
//	msg:{conversationID}:{%019d nanos}:{uuid}   message record
//	idx:msgid:{uuid}                            message key
const (
	conversationPrefix = "conv:"
	userIndexPrefix    = "idx:user:"
	messagePrefix      = "msg:"
	messageIDPrefix    = "idx:msgid:"
)

// newestSuffix sorts after every padded timestamp.
const newestSuffix = "9999999999999999999"

var cursorPattern = regexp.MustCompile(`^\d{19}:[0-9a-f-]{36}$`)

func conversationKey(id domain.ConversationID) []byte {
	return []byte(conversationPrefix + string(id))
}

func userIndexPrefixFor(user domain.UserID) []byte {
	return []byte(userIndexPrefix + string(user) + ":")
}

func userIndexKey(user domain.UserID, id domain.ConversationID) []byte {
	return append(userIndexPrefixFor(user), id...)
}

func messagePrefixFor(id domain.ConversationID) []byte {
	return []byte(messagePrefix + string(id) + ":")
}

// messageKey is padded to 19 digits so lexical order equals chronological
// order, the uuid breaks ties within the same nanosecond.
func messageKey(id domain.ConversationID, at time.Time, msgID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, id, at.UnixNano(), msgID))
}

func messageIDKey(id uuid.UUID) []byte {
	return []byte(messageIDPrefix + id.String())
}

// conversationOfMessageKey extracts the conversation id from a message key.
// Conversation ids never contain ':'.
func conversationOfMessageKey(key []byte) (domain.ConversationID, bool) {
	rest, ok := bytes.CutPrefix(key, []byte(messagePrefix))
	if !ok {
		return "", false
	}
	id, _, ok := bytes.Cut(rest, []byte(":"))
	return domain.ConversationID(id), ok
}

// encodeCursor turns the key suffix of the oldest returned message into the
// opaque token handed to clients.
func encodeCursor(key, prefix []byte) string {
	return base64.RawURLEncoding.EncodeToString(key[len(prefix):])
}

func decodeCursor(cursor string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(cursor))
	if err != nil || !cursorPattern.Match(raw) {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidCursor, cursor)
	}
	return string(raw), nil
}
