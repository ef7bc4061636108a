package domain

import "strings"

// Profile is a user's contact data.
type Profile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// DisplayName returns the name shown on reviews.
func (p *Profile) DisplayName() string {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return AnonymousAuthor
	}
	return strings.TrimSpace(p.Name)
}

// ProfilePatch holds the fields to change. Nil fields are left untouched.
type ProfilePatch struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
	Address *string `json:"address" validate:"omitempty,max=1024"`
}

// Fields returns the set fields keyed by their JSON name.
func (p ProfilePatch) Fields() map[string]any {
	out := make(map[string]any, 4)
	if p.Name != nil {
		out["name"] = *p.Name
	}
	if p.Email != nil {
		out["email"] = *p.Email
	}
	if p.Phone != nil {
		out["phone"] = *p.Phone
	}
	if p.Address != nil {
		out["address"] = *p.Address
	}
	return out
}

// Apply merges the patch into p.
func (p *Profile) Apply(patch ProfilePatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.Address != nil {
		p.Address = *patch.Address
	}
}
