package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CanMessage reports whether two users may exchange messages on a listing.
// The gate opens only between the listing owner and an applicant whose
// application on that listing is paid; it stays open in both directions once
// payment completes. When applicationID is given the gate checks that exact
// application; otherwise it searches the listing's applications for the one
// connecting the two users.
func (s *Service) CanMessage(ctx context.Context, listingID, senderID, recipientID, applicationID string) (bool, error) {
	if senderID == recipientID {
		return false, nil
	}
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return false, err
	}

	if applicationID != "" {
		app, err := s.store.GetApplication(ctx, applicationID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if app.ListingID != listingID {
			return false, nil
		}
		pair := (senderID == listing.UserID && recipientID == app.ApplicantID) ||
			(senderID == app.ApplicantID && recipientID == listing.UserID)
		if !pair {
			return false, nil
		}
		return app.PaymentStatus == PaymentPaid, nil
	}

	var applicantID string
	switch {
	case listing.UserID == senderID:
		applicantID = recipientID
	case listing.UserID == recipientID:
		applicantID = senderID
	default:
		return false, nil
	}

	apps, err := s.store.ListApplicationsByListing(ctx, listingID)
	if err != nil {
		return false, err
	}
	for _, app := range apps {
		if app.ApplicantID == applicantID && app.PaymentStatus == PaymentPaid {
			return true, nil
		}
	}
	return false, nil
}

// NewMessage is the input for SendMessage. ApplicationID is optional and
// pins the message to the application that opened the gate.
type NewMessage struct {
	ListingID     string
	ApplicationID string
	RecipientID   string
	Content       string
}

// SendMessage delivers a message once the payment gate permits it. The
// message and its audit entry are written together.
func (s *Service) SendMessage(ctx context.Context, actor Actor, in NewMessage) (Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Message{}, fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if len(content) > 5000 {
		return Message{}, fmt.Errorf("%w: message content exceeds 5000 characters", ErrValidation)
	}
	if in.RecipientID == actor.UserID {
		return Message{}, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}

	ok, err := s.CanMessage(ctx, in.ListingID, actor.UserID, in.RecipientID, in.ApplicationID)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, fmt.Errorf("%w: messaging opens after the platform fee is paid", ErrForbidden)
	}

	msg := Message{
		ID:            newID(),
		ListingID:     in.ListingID,
		ApplicationID: in.ApplicationID,
		SenderID:      actor.UserID,
		RecipientID:   in.RecipientID,
		Content:       content,
		CreatedAt:     s.now().UTC(),
	}
	entry := s.auditEntry(actor, AuditMessageSent, "listing", in.ListingID, map[string]string{
		"recipient_id": in.RecipientID,
	})
	if err := s.store.CreateMessage(ctx, &msg, entry); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListConversation returns the message thread between two users on a
// listing; only a participant may read it.
func (s *Service) ListConversation(ctx context.Context, listingID, actorUserID, otherUserID string) ([]Message, error) {
	if actorUserID == otherUserID {
		return nil, fmt.Errorf("%w: conversation requires two distinct users", ErrValidation)
	}
	msgs, err := s.store.ListMessages(ctx, listingID, actorUserID, otherUserID)
	if err != nil {
		return nil, err
	}
	// Reading marks the incoming half of the thread as read.
	if err := s.store.MarkMessagesRead(ctx, actorUserID, otherUserID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListUserMessages returns every message the user sent or received, newest
// first, for the inbox view.
func (s *Service) ListUserMessages(ctx context.Context, userID string) ([]Message, error) {
	return s.store.ListUserMessages(ctx, userID)
}
