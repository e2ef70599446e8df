package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rbaliyan/postbox"
)

type userResource struct {
	*postbox.User
	Profile postbox.UserCounts `json:"profile"`
}

type messageMetadata struct {
	TotalRecipients int `json:"total_recipients"`
	ReadCount       int `json:"read_count"`
	UnreadCount     int `json:"unread_count"`
}

type messageResource struct {
	*postbox.MessageDetail
	Metadata messageMetadata `json:"metadata"`
}

type systemStatistics struct {
	postbox.SystemStats
	LastUpdated time.Time `json:"last_updated"`
}

// addResource registers a template such as "user://{id}" or "stats://system".
// A template without a placeholder only matches its literal path.
func (r *Registry) addResource(template, description string, read func(ctx context.Context, param string) string) {
	scheme, path, _ := strings.Cut(template, "://")
	fixed := path
	if strings.HasPrefix(path, "{") {
		fixed = ""
	}
	r.resources[scheme] = resource{
		tmpl:  ResourceTemplate{URI: template, Description: description},
		fixed: fixed,
		read:  read,
	}
}

// delegate reads a resource through an existing tool.
func (r *Registry) delegate(tool, argName string) func(ctx context.Context, param string) string {
	return func(ctx context.Context, param string) string {
		raw, _ := json.Marshal(map[string]string{argName: param})
		return r.tools[tool].call(ctx, raw)
	}
}

func (r *Registry) registerResources() {
	r.addResource("users://all", "All users in the system.", func(ctx context.Context, _ string) string {
		return r.tools["get_users"].call(ctx, nil)
	})

	r.addResource("user://{id}", "A user with message counts.", func(ctx context.Context, id string) string {
		profile, err := r.svc.UserProfile(ctx, id)
		if err != nil {
			if postbox.IsDomainError(err) {
				return "User not found"
			}
			return r.failure("loading user resource", err)
		}
		return r.render("loading user resource", userResource{User: profile.User, Profile: profile.Stats})
	})

	r.addResource("messages://all", "Every user's messages, newest first.", func(ctx context.Context, _ string) string {
		msgs, err := r.svc.AllMessages(ctx)
		if err != nil {
			return r.failure("loading messages resource", err)
		}
		return r.render("loading messages resource", nonNil(msgs))
	})

	r.addResource("inbox://{email}", "Messages received by a user.", r.delegate("get_inbox_messages", "recipient_email"))
	r.addResource("outbox://{email}", "Messages sent by a user.", r.delegate("get_sent_messages", "sender_email"))
	r.addResource("unread://{email}", "Unread messages of a user.", r.delegate("get_unread_messages", "recipient_email"))

	r.addResource("message://{id}", "A message with per-recipient read state.", func(ctx context.Context, id string) string {
		detail, err := r.svc.MessageDetail(ctx, id)
		if err != nil {
			return r.failure("retrieving message detail", err)
		}
		return r.render("retrieving message detail", messageResource{
			MessageDetail: detail,
			Metadata: messageMetadata{
				TotalRecipients: detail.TotalRecipients,
				ReadCount:       detail.ReadCount,
				UnreadCount:     detail.UnreadCount,
			},
		})
	})

	r.addResource("stats://system", "System-wide statistics.", func(ctx context.Context, _ string) string {
		stats, err := r.svc.SystemStats(ctx)
		if err != nil {
			return r.failure("loading system stats resource", err)
		}
		return r.render("loading system stats resource", map[string]systemStatistics{
			"system_statistics": {SystemStats: *stats, LastUpdated: r.now()},
		})
	})
}

func (r *Registry) render(action string, v any) string {
	out, err := toJSON(v)
	if err != nil {
		return fmt.Sprintf("Error %s: %v", action, err)
	}
	return out
}
