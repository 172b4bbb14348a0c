// Package pbac implements the policy decision engine: wildcard pattern
// matching, per-attachment variable substitution and deny-overrides-allow
// statement evaluation. It is pure computation; stores and transports
// live elsewhere.
package pbac

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/dhawalhost/authgate/pkg/apperr"
)

// Effect is the verdict a statement contributes.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Valid reports whether e is one of the two known effects.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Statement grants or denies a set of action patterns on a set of
// resource patterns. Patterns may contain '*' wildcards; resource
// patterns may additionally contain ${name} placeholders resolved per
// attachment.
type Statement struct {
	Effect    Effect   `json:"effect"`
	Actions   []string `json:"actions"`
	Resources []string `json:"resources"`
}

// Validate checks the statement shape. Called at the store boundary,
// never during evaluation.
func (s Statement) Validate() error {
	if !s.Effect.Valid() {
		return apperr.Validation("statement effect must be %q or %q, got %q", EffectAllow, EffectDeny, s.Effect)
	}
	if len(s.Actions) == 0 {
		return apperr.Validation("statement requires at least one action pattern")
	}
	if len(s.Resources) == 0 {
		return apperr.Validation("statement requires at least one resource pattern")
	}
	for _, a := range s.Actions {
		if a == "" {
			return apperr.Validation("statement action pattern must not be empty")
		}
	}
	for _, r := range s.Resources {
		if r == "" {
			return apperr.Validation("statement resource pattern must not be empty")
		}
	}
	return nil
}

// Variables is an attachment's substitution map, stored as jsonb.
type Variables map[string]string

// Value implements driver.Valuer.
func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (v *Variables) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		return json.Unmarshal(s, v)
	case string:
		return json.Unmarshal([]byte(s), v)
	default:
		return fmt.Errorf("cannot scan %T into Variables", src)
	}
}

// Statements is a policy's ordered statement list, stored as jsonb.
type Statements []Statement

// Value implements driver.Valuer.
func (s Statements) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *Statements) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into Statements", src)
	}
}
