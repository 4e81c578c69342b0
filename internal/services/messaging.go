package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/repository"
	"github.com/AnshRaj112/physiq-backend/pkg/utils"
)

// MaxMessageLength caps message content, counted in bytes after normalization.
const MaxMessageLength = 4000

// MessageService handles direct messages and the block list.
type MessageService struct {
	store         repository.Store
	clock         clock.Clock
	enforceBlocks bool
}

// NewMessageService returns a MessageService. When enforceBlocks is set, Send
// refuses messages to members who blocked the sender.
func NewMessageService(store repository.Store, clk clock.Clock, enforceBlocks bool) *MessageService {
	return &MessageService{store: store, clock: clk, enforceBlocks: enforceBlocks}
}

// Send stores a message from senderID to receiverID. Messaging yourself is allowed.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID, content string) (*models.Message, error) {
	content = utils.NormalizeText(content)
	if content == "" {
		return nil, newError(KindEmptyContent, "message cannot be empty")
	}
	if len(content) > MaxMessageLength {
		return nil, newError(KindInvalidInput, "message is too long")
	}

	if _, err := s.store.Users().GetUser(ctx, senderID); err != nil {
		return nil, notFoundOr(err, "sender not found")
	}
	if _, err := s.store.Users().GetUser(ctx, receiverID); err != nil {
		return nil, notFoundOr(err, "recipient not found")
	}
	if s.enforceBlocks {
		if err := s.CheckCanMessage(ctx, senderID, receiverID); err != nil {
			return nil, err
		}
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.Messages().InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// CheckCanMessage returns a KindBlocked error when receiverID has blocked senderID.
func (s *MessageService) CheckCanMessage(ctx context.Context, senderID, receiverID string) error {
	blocked, err := s.store.Blocks().IsBlocked(ctx, receiverID, senderID)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return newError(KindBlocked, "this user is not accepting your messages")
	}
	return nil
}

// ConversationBetween returns every message between a and b, oldest first.
func (s *MessageService) ConversationBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	msgs, err := s.store.Messages().MessagesBetween(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

// ConversationsFor summarizes userID's conversations, most recent first.
// The last message of each is the newest one; equal timestamps go to the
// message stored later.
func (s *MessageService) ConversationsFor(ctx context.Context, userID string) ([]models.Conversation, error) {
	msgs, err := s.store.Messages().MessagesFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	byOther := make(map[string]*models.Conversation)
	for _, m := range msgs {
		other := m.ReceiverID
		if m.SenderID != userID {
			other = m.SenderID
		}

		c, ok := byOther[other]
		if !ok {
			c = &models.Conversation{UserID: userID, OtherUserID: other, LastMessage: m}
			byOther[other] = c
		} else if newer(m, c.LastMessage) {
			c.LastMessage = m
		}
		if m.ReceiverID == userID && !m.Read {
			c.UnreadCount++
		}
	}

	out := make([]models.Conversation, 0, len(byOther))
	for _, c := range byOther {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].LastMessage, out[j].LastMessage)
	})
	return out, nil
}

// newer orders by created_at, then by id.
func newer(a, b models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// MarkRead flags a message as read. Marking a read message again is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, messageID int64) error {
	if err := s.store.Messages().MarkMessageRead(ctx, messageID); err != nil {
		return notFoundOr(err, "message not found")
	}
	return nil
}

// MarkReadBy is MarkRead restricted to the message's receiver. Messages
// addressed to someone else are reported as not found.
func (s *MessageService) MarkReadBy(ctx context.Context, readerID string, messageID int64) error {
	msg, err := s.store.Messages().GetMessage(ctx, messageID)
	if err != nil {
		return notFoundOr(err, "message not found")
	}
	if msg.ReceiverID != readerID {
		return newError(KindNotFound, "message not found")
	}
	if msg.Read {
		return nil
	}
	return s.MarkRead(ctx, messageID)
}

// MarkConversationRead marks every unread message from otherID to userID as
// read and returns how many changed.
func (s *MessageService) MarkConversationRead(ctx context.Context, userID, otherID string) (int, error) {
	msgs, err := s.store.Messages().MessagesBetween(ctx, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}
	n := 0
	for _, m := range msgs {
		if m.Read || m.ReceiverID != userID || m.SenderID != otherID {
			continue
		}
		if err := s.store.Messages().MarkMessageRead(ctx, m.ID); err != nil {
			return n, fmt.Errorf("mark message %d read: %w", m.ID, err)
		}
		n++
	}
	return n, nil
}

// Block adds blockedID to blockerID's block list. Blocking twice is a no-op.
func (s *MessageService) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return newError(KindSelfBlock, "you cannot block yourself")
	}
	if _, err := s.store.Users().GetUser(ctx, blockedID); err != nil {
		return notFoundOr(err, "user not found")
	}
	block := models.BlockedUser{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: s.clock.Now()}
	if err := s.store.Blocks().InsertBlock(ctx, block); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// Unblock removes blockedID from blockerID's block list if present.
func (s *MessageService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := s.store.Blocks().DeleteBlock(ctx, blockerID, blockedID); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

func (s *MessageService) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	blocked, err := s.store.Blocks().IsBlocked(ctx, blockerID, blockedID)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}

func (s *MessageService) ListBlocked(ctx context.Context, blockerID string) ([]models.BlockedUser, error) {
	blocks, err := s.store.Blocks().ListBlocked(ctx, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return blocks, nil
}

// notFoundOr maps repository.ErrNotFound to a KindNotFound error and wraps anything else.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, msg)
	}
	return err
}
