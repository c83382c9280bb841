package tree

import (
	"strings"
	"time"

	"github.com/heirloom-app/heirloom/pkg/utils"
)

// Member is a person record within a family space.
//
// DOB and DateOfDeath are display strings in MM/DD/YYYY form; DOBTS is the
// derived sortable timestamp, populated whenever DOB parses. SpouseID is a
// symmetric back-reference: if A points at B, B is expected to point back at
// A. The pairing is enforced at the service layer and tolerated one-way by
// the assembler.
type Member struct {
	ID                string     `json:"id"`
	SpaceID           string     `json:"space_id,omitempty"`
	FirstName         string     `json:"first_name"`
	MiddleName        string     `json:"middle_name,omitempty"`
	LastName          string     `json:"last_name"`
	NickName          string     `json:"nick_name,omitempty"`
	DOB               string     `json:"dob,omitempty"`
	DOBTS             *time.Time `json:"dob_ts,omitempty"`
	IsDeceased        bool       `json:"is_deceased"`
	DateOfDeath       string     `json:"date_of_death,omitempty"`
	BirthLocation     string     `json:"birth_location,omitempty"`
	ResidenceLocation string     `json:"residence_location,omitempty"`
	Email             string     `json:"email,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	Hobbies           []string   `json:"hobbies,omitempty"`
	SpouseID          string     `json:"spouse_id,omitempty"`
	ProfilePictureURL string     `json:"profile_picture_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at,omitempty"`
}

// NameKey returns the lowercased "first|last" key used to enforce name
// uniqueness within a space.
func (m *Member) NameKey() string {
	return NameKey(m.FirstName, m.LastName)
}

// NameKey builds the uniqueness key for a first/last name pair.
func NameKey(first, last string) string {
	return strings.ToLower(strings.TrimSpace(first)) + "|" + strings.ToLower(strings.TrimSpace(last))
}

// DisplayName returns the member's presentable name, preferring the nickname.
func (m *Member) DisplayName() string {
	if m.NickName != "" {
		return m.NickName + " " + m.LastName
	}
	return m.FirstName + " " + m.LastName
}

// RefreshDOBTS recomputes the derived timestamp from the DOB display string.
// An unparseable DOB clears the timestamp rather than failing; sorting falls
// back to name order for such members.
func (m *Member) RefreshDOBTS() {
	if m.DOB == "" {
		m.DOBTS = nil
		return
	}
	t, err := utils.ParseDisplayDate(m.DOB)
	if err != nil {
		m.DOBTS = nil
		return
	}
	m.DOBTS = &t
}

// BirthTime resolves the member's date of birth, reporting whether it parsed.
func (m *Member) BirthTime() (time.Time, bool) {
	if m.DOBTS != nil {
		return *m.DOBTS, true
	}
	if m.DOB == "" {
		return time.Time{}, false
	}
	t, err := utils.ParseDisplayDate(m.DOB)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
