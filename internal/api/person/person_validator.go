package person

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mfigueiredo/person-registry/internal/api"
)

const minimumAge = 18

var cpfDigitsRe = regexp.MustCompile(`^\d{11}$`)
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var cpfFirstWeights = [9]int{10, 9, 8, 7, 6, 5, 4, 3, 2}
var cpfSecondWeights = [10]int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}

// NormalizeCPF strips the customary formatting characters and surrounding
// whitespace from a CPF, returning the bare digit string used for storage
// and lookup.
func NormalizeCPF(raw string) string {
	cpf := strings.ReplaceAll(raw, ".", "")
	cpf = strings.ReplaceAll(cpf, "-", "")
	return strings.TrimSpace(cpf)
}

// ValidateCPF checks a candidate CPF: 11 digits after normalization, not a
// degenerate repeated sequence, and both mod-11 check digits correct.
// Whether an empty value fails is the caller's policy: create requires the
// field, partial update only validates it when supplied.
func ValidateCPF(raw string, required bool) error {
	if strings.TrimSpace(raw) == "" {
		if required {
			return errors.New("CPF is required")
		}
		return nil
	}

	cpf := NormalizeCPF(raw)
	if !cpfDigitsRe.MatchString(cpf) {
		return errors.New("CPF must contain 11 numeric digits, optionally formatted as XXX.XXX.XXX-XX")
	}

	if strings.Count(cpf, cpf[:1]) == len(cpf) {
		return errors.New("invalid CPF")
	}

	if !hasValidCheckDigits(cpf) {
		return errors.New("invalid CPF")
	}
	return nil
}

// hasValidCheckDigits runs the two-pass checksum over a normalized 11-digit
// CPF. Each pass sums the leading digits weighted positionally, takes the
// remainder mod 11 and maps remainders below two to zero, otherwise to
// 11 minus the remainder.
func hasValidCheckDigits(cpf string) bool {
	sum := 0
	for i, w := range cpfFirstWeights {
		sum += int(cpf[i]-'0') * w
	}
	first := 11 - sum%11
	if sum%11 < 2 {
		first = 0
	}
	if int(cpf[9]-'0') != first {
		return false
	}

	sum = 0
	for i, w := range cpfSecondWeights[:9] {
		sum += int(cpf[i]-'0') * w
	}
	sum += first * cpfSecondWeights[9]
	second := 11 - sum%11
	if sum%11 < 2 {
		second = 0
	}
	return int(cpf[10]-'0') == second
}

// ValidateBirthDate applies the registry's date constraints in order: absence
// policy, not in the future, calendar year at least 1900, and minimum age.
// The age check counts full years elapsed, so a birthday not yet reached this
// year subtracts one.
func ValidateBirthDate(birthDate *time.Time, required bool) error {
	if birthDate == nil || birthDate.IsZero() {
		if required {
			return errors.New("birth date is required")
		}
		return nil
	}

	today := truncateToDay(time.Now())
	bd := truncateToDay(*birthDate)

	if bd.After(today) {
		return errors.New("birth date cannot be in the future")
	}
	if bd.Year() < 1900 {
		return errors.New("birth date must be on or after 1900-01-01")
	}

	age := today.Year() - bd.Year()
	if bd.AddDate(age, 0, 0).After(today) {
		age--
	}
	if age < minimumAge {
		return fmt.Errorf("minimum age is %d years", minimumAge)
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func validateEmail(email string) error {
	if !emailRe.MatchString(email) {
		return errors.New("invalid e-mail address")
	}
	return nil
}

// ValidateCreate checks a registration payload field by field and returns the
// accumulated map of failures, or nil when the payload is acceptable.
func ValidateCreate(req *CreatePersonRequest) api.FieldErrors {
	fields := api.FieldErrors{}

	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "name is required"
	}
	if req.Password == "" {
		fields["password"] = "password is required"
	}
	if err := ValidateCPF(req.CPF, true); err != nil {
		fields["cpf"] = err.Error()
	}
	var birthDate *time.Time
	if req.BirthDate != nil {
		birthDate = &req.BirthDate.Time
	}
	if err := ValidateBirthDate(birthDate, true); err != nil {
		fields["birthDate"] = err.Error()
	}
	if req.Email != nil && *req.Email != "" {
		if err := validateEmail(*req.Email); err != nil {
			fields["email"] = err.Error()
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// ValidateUpdate checks a partial-update payload. Only supplied fields are
// validated; a supplied field may not be blanked out when the stored value is
// mandatory.
func ValidateUpdate(req *UpdatePersonRequest) api.FieldErrors {
	fields := api.FieldErrors{}

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		fields["name"] = "name cannot be empty"
	}
	if req.CPF != nil {
		if err := ValidateCPF(*req.CPF, true); err != nil {
			fields["cpf"] = err.Error()
		}
	}
	if req.BirthDate != nil {
		bd := req.BirthDate.Time
		if err := ValidateBirthDate(&bd, true); err != nil {
			fields["birthDate"] = err.Error()
		}
	}
	if req.Email != nil && *req.Email != "" {
		if err := validateEmail(*req.Email); err != nil {
			fields["email"] = err.Error()
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
