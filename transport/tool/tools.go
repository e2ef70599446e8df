package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/rbaliyan/postbox"
)

func (r *Registry) registerTools() {
	register(r, "create_user", "Create a new user with the given name and email.", "creating user",
		[]Argument{
			{Name: "name", Description: "Display name", Required: true},
			{Name: "email", Description: "Email address, unique per user", Required: true},
		},
		func(ctx context.Context, a createUserArgs) (string, error) {
			user, err := r.svc.CreateUser(ctx, a.Email, a.Name)
			if err != nil && (user == nil || !eventOnly(err)) {
				return "", err
			}
			return fmt.Sprintf("User '%s' with email '%s' created successfully. ID: %s", user.Name, user.Email, user.ID), nil
		})

	register(r, "get_users", "Get all users or a specific user by ID.", "retrieving users",
		[]Argument{{Name: "user_id", Description: "Optional user id"}},
		func(ctx context.Context, a getUsersArgs) (string, error) {
			if strings.TrimSpace(a.UserID) == "" {
				users, err := r.svc.ListUsers(ctx)
				if err != nil {
					return "", err
				}
				return toJSON(nonNil(users))
			}
			user, err := r.svc.GetUserByID(ctx, a.UserID)
			if err != nil {
				return "", err
			}
			if user == nil {
				return "User not found", nil
			}
			return toJSON(user)
		})

	register(r, "send_message", "Send a message to one or more recipients using email addresses.", "sending message",
		[]Argument{
			{Name: "sender_email", Description: "Sender email", Required: true},
			{Name: "recipient_emails", Description: "List of recipient emails", Required: true},
			{Name: "content", Description: "Message body", Required: true},
			{Name: "subject", Description: "Optional subject"},
		},
		func(ctx context.Context, a sendMessageArgs) (string, error) {
			msg, err := r.svc.SendMessage(ctx, postbox.SendRequest{
				SenderEmail:     a.SenderEmail,
				RecipientEmails: a.RecipientEmails,
				Subject:         a.Subject,
				Content:         a.Content,
			})
			if err != nil && (msg == nil || !eventOnly(err)) {
				return "", err
			}
			return fmt.Sprintf("Message sent successfully to %s. Message ID: %s", strings.Join(msg.RecipientEmails, ", "), msg.ID), nil
		})

	register(r, "get_messages", "Get all messages for a user (both sent and received) using email address.", "retrieving messages",
		[]Argument{{Name: "user_email", Description: "User email", Required: true}},
		func(ctx context.Context, a userEmailArgs) (string, error) {
			msgs, err := r.svc.Messages(ctx, a.UserEmail)
			if err != nil {
				return "", err
			}
			return toJSON(nonNil(msgs))
		})

	register(r, "mark_message_read", "Mark a message as read using message ID and recipient email.", "marking message as read",
		[]Argument{
			{Name: "message_id", Description: "Message id", Required: true},
			{Name: "recipient_email", Description: "Recipient email", Required: true},
		},
		func(ctx context.Context, a markReadArgs) (string, error) {
			if err := r.svc.MarkRead(ctx, a.MessageID, a.RecipientEmail); err != nil && !eventOnly(err) {
				return "", err
			}
			return fmt.Sprintf("Message %s marked as read successfully", a.MessageID), nil
		})

	register(r, "get_unread_messages", "Get all unread messages for a user using email address.", "retrieving unread messages",
		[]Argument{{Name: "recipient_email", Description: "Recipient email", Required: true}},
		func(ctx context.Context, a recipientEmailArgs) (string, error) {
			msgs, err := r.svc.UnreadMessages(ctx, a.RecipientEmail)
			if err != nil {
				return "", err
			}
			return toJSON(nonNil(msgs))
		})

	register(r, "get_sent_messages", "Get all messages sent by a user using email address.", "retrieving sent messages",
		[]Argument{{Name: "sender_email", Description: "Sender email", Required: true}},
		func(ctx context.Context, a senderEmailArgs) (string, error) {
			msgs, err := r.svc.SentMessages(ctx, a.SenderEmail)
			if err != nil {
				return "", err
			}
			return toJSON(nonNil(msgs))
		})

	register(r, "get_inbox_messages", "Get all messages received by a user using email address.", "retrieving inbox messages",
		[]Argument{{Name: "recipient_email", Description: "Recipient email", Required: true}},
		func(ctx context.Context, a recipientEmailArgs) (string, error) {
			msgs, err := r.svc.InboxMessages(ctx, a.RecipientEmail)
			if err != nil {
				return "", err
			}
			return toJSON(nonNil(msgs))
		})

	register(r, "get_message_detail", "Get detailed information about a specific message using message ID.", "retrieving message detail",
		[]Argument{{Name: "message_id", Description: "Message id", Required: true}},
		func(ctx context.Context, a messageIDArgs) (string, error) {
			detail, err := r.svc.MessageDetail(ctx, a.MessageID)
			if err != nil {
				return "", err
			}
			return toJSON(detail)
		})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
