package models

import "time"

type Account struct {
	ID                     string     `db:"id"`
	PhoneNumber            string     `db:"phone_number"`
	CountryCode            string     `db:"country_code"`
	Name                   string     `db:"name"`
	ProfilePicture         string     `db:"profile_picture"`
	Description            string     `db:"description"`
	IsVerified             bool       `db:"is_verified"`
	VerificationCode       string     `db:"verification_code"`
	VerificationCodeExpiry *time.Time `db:"verification_code_expiry"`
	IsProfileComplete      bool       `db:"is_profile_complete"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

// HasPendingCode reports whether a code is stored and still inside its window at now.
func (a *Account) HasPendingCode(now time.Time) bool {
	if a.VerificationCode == "" || a.VerificationCodeExpiry == nil {
		return false
	}
	return a.VerificationCodeExpiry.After(now)
}

// Summary is the client-facing projection. The hashed code never leaves the store layer.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:                a.ID,
		PhoneNumber:       a.PhoneNumber,
		IsVerified:        a.IsVerified,
		IsProfileComplete: a.IsProfileComplete,
		Name:              a.Name,
		ProfilePicture:    a.ProfilePicture,
		Description:       a.Description,
	}
}

// MemberSummary is the slice of an account embedded in chat listings.
func (a *Account) MemberSummary() MemberSummary {
	return MemberSummary{
		ID:             a.ID,
		Name:           a.Name,
		PhoneNumber:    a.PhoneNumber,
		ProfilePicture: a.ProfilePicture,
	}
}

type AccountSummary struct {
	ID                string `json:"id"`
	PhoneNumber       string `json:"phoneNumber"`
	IsVerified        bool   `json:"isVerified"`
	IsProfileComplete bool   `json:"isProfileComplete"`
	Name              string `json:"name,omitempty"`
	ProfilePicture    string `json:"profilePicture,omitempty"`
	Description       string `json:"description,omitempty"`
}

// Profile is a full replacement of the profile fields; empty strings clear.
type Profile struct {
	Name           string
	ProfilePicture string
	Description    string
}

// ProfilePatch only touches the fields that are non-nil.
type ProfilePatch struct {
	Name           *string
	ProfilePicture *string
	Description    *string
}

func (p ProfilePatch) IsEmpty() bool {
	return p.Name == nil && p.ProfilePicture == nil && p.Description == nil
}

// Apply merges the patch into the account in place.
func (p ProfilePatch) Apply(a *Account) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.ProfilePicture != nil {
		a.ProfilePicture = *p.ProfilePicture
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
}
