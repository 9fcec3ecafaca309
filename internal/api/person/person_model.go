package person

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date serialized as "YYYY-MM-DD" on the wire.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

// Person is the persistent registry entity. The password hash is write-only
// and never serialized.
type Person struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Gender       *string    `json:"gender,omitempty"`
	Email        *string    `json:"email,omitempty"`
	BirthDate    Date       `json:"birthDate"`
	Nationality  *string    `json:"nationality,omitempty"`
	PlaceOfBirth *string    `json:"placeOfBirth,omitempty"`
	CPF          string     `json:"cpf"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"-"`
}

// CreatePersonRequest is the registration payload.
type CreatePersonRequest struct {
	Name         string  `json:"name"`
	Gender       *string `json:"gender"`
	Email        *string `json:"email"`
	BirthDate    *Date   `json:"birthDate"`
	Nationality  *string `json:"nationality"`
	PlaceOfBirth *string `json:"placeOfBirth"`
	CPF          string  `json:"cpf"`
	Password     string  `json:"password"`
}

// UpdatePersonRequest is the partial-update payload. Nil fields are left
// untouched; non-nil fields overwrite the stored value.
type UpdatePersonRequest struct {
	Name         *string `json:"name"`
	Gender       *string `json:"gender"`
	Email        *string `json:"email"`
	BirthDate    *Date   `json:"birthDate"`
	Nationality  *string `json:"nationality"`
	PlaceOfBirth *string `json:"placeOfBirth"`
	CPF          *string `json:"cpf"`
}

// LoginRequest carries the credentials for authentication.
type LoginRequest struct {
	CPF      string `json:"cpf"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful authentication.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Person      *Person   `json:"person"`
}

const (
	defaultPageIndex = 1
	defaultPageSize  = 10
)

// Filter describes the optional search criteria and page slicing for listing
// persons. Text filters are case-sensitive substring matches; BirthDate
// matches any record on that calendar day.
type Filter struct {
	Name         string
	Gender       string
	Email        string
	Nationality  string
	PlaceOfBirth string
	CPF          string
	BirthDate    *time.Time
	PageIndex    int
	PageSize     int
}

// Normalize applies the default page index and size. Invalid values fall back
// silently rather than erroring.
func (f *Filter) Normalize() {
	if f.PageIndex <= 0 {
		f.PageIndex = defaultPageIndex
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
}

// Offset returns the number of rows skipped before the requested page.
func (f *Filter) Offset() int {
	return (f.PageIndex - 1) * f.PageSize
}

// UpdateParams carries the validated, normalized field changes handed to the
// repository. Nil fields are not written.
type UpdateParams struct {
	Name         *string
	Gender       *string
	Email        *string
	BirthDate    *time.Time
	Nationality  *string
	PlaceOfBirth *string
	CPF          *string
}

// IsEmpty reports whether no field was supplied at all.
func (p *UpdateParams) IsEmpty() bool {
	return p.Name == nil && p.Gender == nil && p.Email == nil &&
		p.BirthDate == nil && p.Nationality == nil && p.PlaceOfBirth == nil &&
		p.CPF == nil
}
