package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AccessLevel is the ordinal global role carried on every user.
type AccessLevel int

const (
	LevelGuestUser         AccessLevel = 0
	LevelDesignEngineer    AccessLevel = 5
	LevelTestingEngineer   AccessLevel = 10
	LevelSoftwareDeveloper AccessLevel = 20
	LevelManager           AccessLevel = 30
	LevelTeamLead          AccessLevel = 40
	LevelCompanyAdmin      AccessLevel = 60
	LevelOwner             AccessLevel = 100
)

var levelNames = map[AccessLevel]string{
	LevelGuestUser:         "GUEST_USER",
	LevelDesignEngineer:    "DESIGN_ENGINEER",
	LevelTestingEngineer:   "TESTING_ENGINEER",
	LevelSoftwareDeveloper: "SOFTWARE_DEVELOPER",
	LevelManager:           "MANAGER",
	LevelTeamLead:          "TEAM_LEAD",
	LevelCompanyAdmin:      "COMPANY_ADMIN",
	LevelOwner:             "OWNER",
}

// Valid reports whether l is one of the named tiers.
func (l AccessLevel) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func (l AccessLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return strconv.Itoa(int(l))
}

// ParseAccessLevel accepts either the numeric tier ("100") or its name
// ("owner", "TEAM_LEAD", "team lead").
func ParseAccessLevel(raw string) (AccessLevel, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: access level is required", ErrInvalidInput)
	}
	if n, err := strconv.Atoi(raw); err == nil {
		l := AccessLevel(n)
		if !l.Valid() {
			return 0, fmt.Errorf("%w: unknown access level %d", ErrInvalidInput, n)
		}
		return l, nil
	}
	name := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(raw))
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, raw)
}

// UnmarshalJSON accepts both numbers and tier names.
func (l *AccessLevel) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		parsed := AccessLevel(n)
		if !parsed.Valid() {
			return fmt.Errorf("%w: unknown access level %d", ErrInvalidInput, n)
		}
		*l = parsed
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: access level must be a string or an integer", ErrInvalidInput)
	}
	parsed, err := ParseAccessLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
