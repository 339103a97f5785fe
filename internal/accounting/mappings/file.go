package mappings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleFile is the YAML layout of LEDGER_ACCOUNT_ROLES_FILE:
//
//	roles:
//	  cash_in_hand: {name: "Cash in Hand"}
//	  bank_account: {code: "1010"}
type RoleFile struct {
	Roles map[Role]Target `yaml:"roles"`
}

// LoadRoleFile reads role targets from path and layers them over the defaults.
// An empty path yields the defaults.
func LoadRoleFile(path string) (map[Role]Target, error) {
	if path == "" {
		return DefaultTargets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mappings: read role file: %w", err)
	}
	return ParseRoles(data)
}

// ParseRoles decodes a role file body over the defaults.
func ParseRoles(data []byte) (map[Role]Target, error) {
	var file RoleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("mappings: parse role file: %w", err)
	}
	targets := DefaultTargets()
	for role, target := range file.Roles {
		if !knownRole(role) {
			return nil, fmt.Errorf("mappings: unknown role %q", role)
		}
		if target.Name == "" && target.Code == "" {
			return nil, fmt.Errorf("mappings: role %q needs a name or code", role)
		}
		targets[role] = target
	}
	return targets, nil
}

func knownRole(role Role) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}
