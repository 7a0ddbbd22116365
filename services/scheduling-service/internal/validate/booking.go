// Package validate checks and normalizes the free-form fields of a booking
// request. It knows nothing about slots or availability; a request that
// passes here can still lose on admission.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// BookingInput is the raw, untrusted request body.
type BookingInput struct {
	Name  string `validate:"required,min=2,max=100,patientname"`
	Phone string `validate:"required,ilphone"`
	Email string `validate:"omitempty,email,max=255"`
	Note  string `validate:"omitempty,max=500"`
}

// Violations maps a field to its first violation, ready to render.
type Violations map[string]string

var fieldMessages = map[string]map[string]string{
	"Name": {
		"required":    "name is required",
		"min":         "name must be at least 2 characters",
		"max":         "name must be at most 100 characters",
		"patientname": "name may only contain letters, spaces, apostrophes and hyphens",
	},
	"Phone": {
		"required": "phone is required",
		"ilphone":  "phone must start with 0 and contain 9-10 digits",
	},
	"Email": {
		"email": "email address is not valid",
		"max":   "email must be at most 255 characters",
	},
	"Note": {
		"max": "note must be at most 500 characters",
	},
}

var fieldKeys = map[string]string{
	"Name":  "name",
	"Phone": "phone",
	"Email": "email",
	"Note":  "note",
}

var (
	// Unicode letters plus the separators that appear in real names.
	nameRe  = regexp.MustCompile(`^[\p{L}' -]+$`)
	phoneRe = regexp.MustCompile(`^0[0-9]{8,9}$`)
	// Characters stripped from phone input before validation.
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("patientname", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return utf8.RuneCountInString(s) <= 100 && nameRe.MatchString(s)
	})
	_ = v.RegisterValidation("ilphone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// ValidateBooking normalizes in and returns either the normalized record or
// the first violation found per field. Values are never coerced past
// whitespace/separator cleanup.
func (val *Validator) ValidateBooking(in BookingInput) (BookingInput, Violations) {
	in.Name = strings.Join(strings.Fields(in.Name), " ")
	in.Phone = phoneSeparators.Replace(strings.TrimSpace(in.Phone))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Note = strings.TrimSpace(in.Note)

	err := val.v.Struct(in)
	if err == nil {
		return in, nil
	}

	invalid, ok := err.(validator.ValidationErrors)
	if !ok {
		return in, Violations{"request": "invalid request"}
	}

	violations := Violations{}
	for _, fe := range invalid {
		key := fieldKeys[fe.StructField()]
		if key == "" {
			key = strings.ToLower(fe.StructField())
		}
		if _, seen := violations[key]; seen {
			continue
		}
		msg := fieldMessages[fe.StructField()][fe.Tag()]
		if msg == "" {
			msg = "invalid value"
		}
		violations[key] = msg
	}
	return in, violations
}

// NormalizePhone applies the same cleanup the validator uses; admission keys
// its rate limit on this form so "050-1234567" and "0501234567" count as the
// same requester.
func NormalizePhone(phone string) string {
	return phoneSeparators.Replace(strings.TrimSpace(phone))
}
