package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HistoryClient reads message history over REST. It backs degraded mode.
type HistoryClient struct {
	baseURL    string
	credential string
	http       *http.Client
	maxElapsed time.Duration
}

func NewHistoryClient(baseURL, credential string, timeout time.Duration) *HistoryClient {
	return &HistoryClient{
		baseURL:    baseURL,
		credential: credential,
		http:       &http.Client{Timeout: timeout},
		maxElapsed: timeout,
	}
}

type historyPage struct {
	Messages []event.MessagePayload `json:"messages"`
	NextPage string                 `json:"nextPage"`
}

// Latest returns the newest pageSize messages, oldest first. Server errors
// are retried with backoff, client errors are not.
func (c *HistoryClient) Latest(ctx context.Context, conversationID domain.ConversationID, pageSize int) ([]domain.Message, error) {
	endpoint := fmt.Sprintf("%s/conversations/%s/messages?pageSize=%s",
		c.baseURL, url.PathEscape(string(conversationID)), strconv.Itoa(pageSize))

	var page historyPage
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.credential)
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: history returned %d", errors.ErrTransientStore, resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized:
			return backoff.Permanent(errors.ErrInvalidToken)
		case resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(errors.ErrNotParticipant)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("history returned %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&page)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(page.Messages))
	for _, payload := range page.Messages {
		msg, err := payload.ToMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
