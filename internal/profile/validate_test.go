package profile

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work-account", "a", "user_2"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "Has Upper", "with space", "dot.name", "slash/name",
		"waytoolongwaytoolongwaytoolongwaytoolongwaytoolongwaytoolongwaytoolong"}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}
