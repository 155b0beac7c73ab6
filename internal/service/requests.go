package service

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"chat-auth-service/internal/models"
	"chat-auth-service/internal/phone"
	"chat-auth-service/internal/util"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

var (
	errPhoneFormat = errors.New("must start with + and country code, 10 to 15 digits")
	errBlank       = errors.New("cannot be blank")
)

type SendCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

func (r SendCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PhoneNumber, validation.Required, validation.By(validPhone)),
	)
}

type VerifyCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

func (r VerifyCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PhoneNumber, validation.Required, validation.By(validPhone)),
		validation.Field(&r.Code,
			validation.Required,
			validation.Match(codePattern).Error("verification code must be 6 digits"),
		),
	)
}

type CompleteProfileRequest struct {
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Normalize trims the free-text fields. Validation runs on the result.
func (r *CompleteProfileRequest) Normalize() {
	r.Name = util.SanitizeInput(r.Name)
	r.ProfilePicture = strings.TrimSpace(r.ProfilePicture)
	r.Description = util.SanitizeInput(r.Description)
}

func (r CompleteProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(2, 50)),
		validation.Field(&r.ProfilePicture, is.URL.Error("invalid profile picture URL")),
		validation.Field(&r.Description, validation.RuneLength(0, 150)),
	)
}

func (r CompleteProfileRequest) Profile() models.Profile {
	return models.Profile{
		Name:           r.Name,
		ProfilePicture: r.ProfilePicture,
		Description:    r.Description,
	}
}

// UpdateProfileRequest distinguishes an omitted field (nil) from one
// explicitly set to the empty string.
type UpdateProfileRequest struct {
	Name           *string `json:"name,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	Description    *string `json:"description,omitempty"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.Name = util.SanitizeOptional(r.Name)
	if r.ProfilePicture != nil {
		v := strings.TrimSpace(*r.ProfilePicture)
		r.ProfilePicture = &v
	}
	r.Description = util.SanitizeOptional(r.Description)
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.By(notBlankIfSet), validation.RuneLength(2, 50)),
		validation.Field(&r.ProfilePicture, is.URL.Error("invalid profile picture URL")),
		validation.Field(&r.Description, validation.RuneLength(0, 150)),
	)
}

func (r UpdateProfileRequest) Patch() models.ProfilePatch {
	return models.ProfilePatch{
		Name:           r.Name,
		ProfilePicture: r.ProfilePicture,
		Description:    r.Description,
	}
}

type CreateChatRequest struct {
	Members     []string `json:"members"`
	LastMessage string   `json:"lastMessage,omitempty"`
}

func (r CreateChatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Members, validation.Required.Error("chat must have at least one member"), validation.By(noBlankMembers)),
	)
}

type UpdateLastMessageRequest struct {
	LastMessage     string `json:"lastMessage"`
	LastMessageType string `json:"lastMessageType,omitempty"`
}

func (r *UpdateLastMessageRequest) Normalize() {
	r.LastMessage = util.SanitizeInput(r.LastMessage)
	r.LastMessageType = strings.TrimSpace(r.LastMessageType)
}

func (r UpdateLastMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LastMessage, validation.Required),
		validation.Field(&r.LastMessageType, validation.In(messageTypeValues()...)),
	)
}

func messageTypeValues() []interface{} {
	out := make([]interface{}, len(models.MessageTypes))
	for i, t := range models.MessageTypes {
		out[i] = t
	}
	return out
}

func validPhone(value interface{}) error {
	s, _ := value.(string)
	if !phone.Valid(s) {
		return errPhoneFormat
	}
	return nil
}

func noBlankMembers(value interface{}) error {
	members, _ := value.([]string)
	for _, m := range members {
		if strings.TrimSpace(m) == "" {
			return errors.New("member ids cannot be blank")
		}
	}
	return nil
}

func notBlankIfSet(value interface{}) error {
	if s, ok := value.(*string); ok && s != nil && *s == "" {
		return errBlank
	}
	return nil
}

// validationError converts an ozzo validation result into an InvalidInput
// error with a per-field breakdown.
func validationError(err error) *Error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return wrapError(ErrInvalidInput, "Validation failed", err)
	}

	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := newError(ErrInvalidInput, "Validation failed")
	for _, k := range keys {
		e.Fields = append(e.Fields, FieldError{Field: k, Message: verrs[k].Error()})
	}
	if len(e.Fields) == 1 {
		e.Message = e.Fields[0].Field + ": " + e.Fields[0].Message
	}
	return e
}

type validatable interface {
	Validate() error
}

func validate(req validatable) *Error {
	if err := req.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}
