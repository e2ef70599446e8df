package tool

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rbaliyan/postbox"
	"github.com/samber/lo"
)

type createUserArgs struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,postbox_email"`
}

type getUsersArgs struct {
	UserID string `json:"user_id"`
}

type sendMessageArgs struct {
	SenderEmail     string   `json:"sender_email" validate:"required"`
	RecipientEmails []string `json:"recipient_emails" validate:"required,min=1"`
	Content         string   `json:"content" validate:"required"`
	Subject         string   `json:"subject"`
}

type userEmailArgs struct {
	UserEmail string `json:"user_email" validate:"required,postbox_email"`
}

type senderEmailArgs struct {
	SenderEmail string `json:"sender_email" validate:"required,postbox_email"`
}

type recipientEmailArgs struct {
	RecipientEmail string `json:"recipient_email" validate:"required,postbox_email"`
}

type markReadArgs struct {
	MessageID      string `json:"message_id" validate:"required"`
	RecipientEmail string `json:"recipient_email" validate:"required,postbox_email"`
}

type messageIDArgs struct {
	MessageID string `json:"message_id" validate:"required"`
}

// newValidator returns a validator that reports fields by their JSON name and
// understands the postbox_email tag.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("postbox_email", func(fl validator.FieldLevel) bool {
		return postbox.ValidateEmail(fl.Field().String()) == nil
	})
	return v
}

// describe turns validator failures into a short message.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "postbox_email":
			return fe.Field() + ": invalid email format"
		case "min":
			return fe.Field() + " must have at least " + fe.Param() + " item(s)"
		default:
			return fe.Field() + " is invalid"
		}
	})
	return strings.Join(msgs, "; ")
}
