package server

import (
	"fmt"
	"net/http"
	"skill-chat/domain"
	"skill-chat/domain/event"
	"skill-chat/errors"
	"skill-chat/services"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type getOrCreateRequest struct {
	Participants []string `json:"participants" binding:"required,len=2,dive,required"`
}

type editRequest struct {
	Content string `json:"content" binding:"required"`
}

type messagePageResponse struct {
	Messages []event.MessagePayload `json:"messages"`
	NextPage string                 `json:"nextPage,omitempty"`
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

func messageID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: message id %q", errors.ErrInvalidPayload, c.Param("id"))
	}
	return id, nil
}

func (r *Router) getOrCreateConversation(c *gin.Context) {
	var body getOrCreateRequest
	if err := bindJSON(c, &body); err != nil {
		r.renderError(c, err)
		return
	}
	conversation, err := r.deps.Conversations.GetOrCreate(c.Request.Context(), caller(c),
		domain.UserID(body.Participants[0]), domain.UserID(body.Participants[1]))
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, event.FromConversation(conversation))
}

func (r *Router) listConversations(c *gin.Context) {
	conversations, err := r.deps.Conversations.ListForUser(c.Request.Context(), caller(c))
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": lo.Map(conversations, func(item domain.Conversation, _ int) event.ConversationPayload {
			return event.FromConversation(item)
		}),
	})
}

func (r *Router) listMessages(c *gin.Context) {
	pageSize := 0
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			r.renderError(c, fmt.Errorf("%w: pageSize %q", errors.ErrInvalidPayload, v))
			return
		}
		pageSize = n
	}
	page, err := r.deps.Messages.List(c.Request.Context(), domain.ListQuery{
		ConversationID: domain.ConversationID(c.Param("id")),
		Requester:      caller(c),
		Cursor:         c.Query("page"),
		PageSize:       pageSize,
	})
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, messagePageResponse{
		Messages: event.FromMessages(page.Messages),
		NextPage: page.NextCursor,
	})
}

func (r *Router) sendMessage(c *gin.Context) {
	var body event.SendMessagePayload
	if err := bindJSON(c, &body); err != nil {
		r.renderError(c, err)
		return
	}
	if err := event.Validate(body); err != nil {
		r.renderError(c, err)
		return
	}
	replyTo, err := event.ParseOptionalID(body.ReplyTo)
	if err != nil {
		r.renderError(c, err)
		return
	}
	msg, err := r.deps.Messages.Send(c.Request.Context(), services.SendInput{
		SenderID:       caller(c),
		ConversationID: domain.ConversationID(c.Param("id")),
		Content:        body.Content,
		Type:           domain.MessageType(body.Type),
		ReplyTo:        replyTo,
		Attachments:    event.ToAttachments(body.Attachments),
	})
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event.FromMessage(msg))
}

func (r *Router) markConversationRead(c *gin.Context) {
	conversationID := domain.ConversationID(c.Param("id"))
	ids, err := r.deps.Messages.MarkRead(c.Request.Context(), conversationID, caller(c))
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, readResponse(conversationID, caller(c), ids))
}

func (r *Router) markReadUpTo(c *gin.Context) {
	id, err := messageID(c)
	if err != nil {
		r.renderError(c, err)
		return
	}
	ids, err := r.deps.Messages.MarkReadUpTo(c.Request.Context(), id, caller(c))
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, readResponse("", caller(c), ids))
}

func readResponse(conversationID domain.ConversationID, reader domain.UserID, ids []uuid.UUID) event.MessagesReadPayload {
	return event.MessagesReadPayload{
		ConversationID: string(conversationID),
		ReaderID:       string(reader),
		MessageIDs:     lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() }),
	}
}

func (r *Router) editMessage(c *gin.Context) {
	id, err := messageID(c)
	if err != nil {
		r.renderError(c, err)
		return
	}
	var body editRequest
	if err := bindJSON(c, &body); err != nil {
		r.renderError(c, err)
		return
	}
	msg, err := r.deps.Messages.Edit(c.Request.Context(), id, caller(c), body.Content)
	if err != nil {
		r.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, event.FromMessage(msg))
}

func (r *Router) removeMessage(c *gin.Context) {
	id, err := messageID(c)
	if err != nil {
		r.renderError(c, err)
		return
	}
	if err := r.deps.Messages.Remove(c.Request.Context(), id, caller(c)); err != nil {
		r.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// presence answers for the caller and the users sharing a conversation with them.
func (r *Router) presence(c *gin.Context) {
	target := domain.UserID(c.Param("id"))
	me := caller(c)
	if target != me {
		contacts, err := r.deps.Directory.Contacts(c.Request.Context(), me)
		if err != nil {
			r.renderError(c, err)
			return
		}
		if !lo.Contains(contacts, target) {
			r.renderError(c, fmt.Errorf("%w: %s is not a contact", errors.ErrNotParticipant, target))
			return
		}
	}
	c.JSON(http.StatusOK, event.PresencePayload{
		UserID: string(target),
		Status: string(r.deps.Presence.Presence(c.Request.Context(), target)),
		At:     time.Now().UTC(),
	})
}
