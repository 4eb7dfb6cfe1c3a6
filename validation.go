package accounts

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

var (
	alphanumericPassword = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	sixDigits            = regexp.MustCompile(`^\d{6}$`)
)

// RegistrationDraft is the form state collected across the registration steps.
// It lives in memory only.
type RegistrationDraft struct {
	Type            UserType `json:"type"`
	FullName        string   `json:"fullName"`
	Email           string   `json:"email"`
	ConfirmEmail    string   `json:"confirmEmail"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirmPassword"`
	OTP             string   `json:"otp"`
}

// NewRegistrationDraft returns a draft with the default account type.
func NewRegistrationDraft() RegistrationDraft {
	return RegistrationDraft{Type: UserTypeOwner}
}

// AccountDetails is the step two payload
type AccountDetails struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	ConfirmEmail    string `json:"confirmEmail"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Apply copies the details into the draft.
func (a AccountDetails) Apply(d *RegistrationDraft) {
	d.FullName = strings.TrimSpace(a.FullName)
	d.Email = strings.TrimSpace(a.Email)
	d.ConfirmEmail = strings.TrimSpace(a.ConfirmEmail)
	d.Password = a.Password
	d.ConfirmPassword = a.ConfirmPassword
}

func (d *RegistrationDraft) typeField() *validation.FieldRules {
	return validation.Field(&d.Type,
		validation.Required.Error("Account type is required"),
		validation.In(UserTypeOwner, UserTypeIndividual).Error("Account type must be owner or individual"),
	)
}

func (d *RegistrationDraft) detailFields() []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&d.FullName,
			validation.Required.Error("Full name is required"),
			validation.RuneLength(2, 0).Error("Full name must be at least 2 characters"),
			validation.RuneLength(0, 50).Error("Full name must be less than 50 characters"),
		),
		validation.Field(&d.Email,
			validation.Required.Error("Email is required"),
			is.EmailFormat.Error("Please enter a valid email address"),
		),
		validation.Field(&d.ConfirmEmail,
			validation.Required.Error("Please confirm your email address"),
			is.EmailFormat.Error("Please enter a valid email address"),
			validation.By(equalTo(d.Email, "Email addresses do not match")),
		),
		validation.Field(&d.Password,
			validation.Required.Error("Password must be at least 8 characters"),
			validation.Length(8, 0).Error("Password must be at least 8 characters"),
			validation.Length(0, 64).Error("Password must be less than 64 characters"),
			validation.Match(alphanumericPassword).Error("Password should contain only alphabets and numbers"),
		),
		validation.Field(&d.ConfirmPassword,
			validation.Required.Error("Please confirm your password"),
			validation.By(equalTo(d.Password, "Passwords do not match")),
		),
	}
}

func (d *RegistrationDraft) otpField() *validation.FieldRules {
	return validation.Field(&d.OTP,
		validation.Required.Error("OTP is required"),
		validation.Length(6, 6).Error("OTP must be 6 digits"),
		validation.Match(sixDigits).Error("OTP must contain only numbers"),
	)
}

// ValidateStep runs the rules of a single registration step. Complete has
// no rules of its own.
func (d RegistrationDraft) ValidateStep(step Step) error {
	var fields []*validation.FieldRules
	switch step {
	case StepTypeSelection:
		fields = append(fields, d.typeField())
	case StepAccountDetails:
		fields = d.detailFields()
	case StepEmailVerification:
		fields = append(fields, d.otpField())
	default:
		return nil
	}
	return toValidationError(validation.ValidateStruct(&d, fields...))
}

// ValidateDraft runs every rule of the schema.
func ValidateDraft(d RegistrationDraft) error {
	fields := append([]*validation.FieldRules{d.typeField()}, d.detailFields()...)
	fields = append(fields, d.otpField())
	return toValidationError(validation.ValidateStruct(&d, fields...))
}

// unchangedDetails rejects edits to the credentials a pending identity was
// created with. The provider already holds them.
func unchangedDetails(d RegistrationDraft, fullName, password string) error {
	errs := validation.Errors{}
	if d.FullName != fullName {
		errs["fullName"] = errors.New("Full name cannot change after the verification code was sent")
	}
	if d.Password != password {
		errs["password"] = errors.New("Password cannot change after the verification code was sent")
	}
	if len(errs) == 0 {
		return nil
	}
	return toValidationError(errs)
}

func equalTo(expected, message string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return errors.New(message)
		}
		return nil
	}
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var internal validation.InternalError
	if errors.As(err, &internal) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "validation rules failed")
	}

	return goerrors.FromOzzoValidation(err, "registration input is invalid").
		WithTextCode(TextCodeValidationFailed).
		WithCode(http.StatusUnprocessableEntity)
}
