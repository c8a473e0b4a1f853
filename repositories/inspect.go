package repositories

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// InspectRow is one decoded store entry, for operators.
type InspectRow struct {
	Key       string
	Kind      string
	Timestamp string
	Owner     string
	Detail    string
}

// Inspect decodes up to limit entries under prefix. Undecodable records are
// reported in Detail instead of aborting the scan.
func Inspect(ctx context.Context, db *badger.DB, prefix string, limit int) ([]InspectRow, error) {
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(rows) >= limit {
				return nil
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rows = append(rows, InspectEntry(item.KeyCopy(nil), value))
		}
		return nil
	})
	return rows, err
}

// InspectEntry decodes a single raw entry.
func InspectEntry(key, value []byte) InspectRow {
	row := InspectRow{Key: string(key)}
	switch {
	case bytes.HasPrefix(key, []byte(conversationPrefix)):
		row.Kind = "CONVERSATION"
		c, err := decodeConversation(value)
		if err != nil {
			row.Detail = err.Error()
			return row
		}
		row.Timestamp = c.UpdatedAt.Format(time.RFC3339)
		row.Owner = fmt.Sprintf("%s, %s", c.Participants[0], c.Participants[1])
		row.Detail = fmt.Sprintf("active=%t last=%v", c.IsActive, c.LastMessageID)
	case bytes.HasPrefix(key, []byte(messagePrefix)):
		row.Kind = "MESSAGE"
		m, err := decodeMessage(value)
		if err != nil {
			row.Detail = err.Error()
			return row
		}
		row.Timestamp = m.CreatedAt.Format(time.RFC3339Nano)
		row.Owner = string(m.SenderID)
		row.Detail = fmt.Sprintf("[%s] %s", m.Type, m.Content)
		if m.IsEdited {
			row.Detail += " (edited)"
		}
	case bytes.HasPrefix(key, []byte(userIndexPrefix)):
		row.Kind = "USER_INDEX"
		parts := strings.SplitN(strings.TrimPrefix(string(key), userIndexPrefix), ":", 2)
		row.Owner = parts[0]
	case bytes.HasPrefix(key, []byte(messageIDPrefix)):
		row.Kind = "MESSAGE_INDEX"
		row.Detail = string(value)
	default:
		row.Kind = "UNKNOWN"
	}
	return row
}
