// Package role defines the closed set of identity roles and the single table
// that maps each role to its capability mask.
package role

import (
	"errors"
	"strings"

	"github.com/lucaaxano/poa-app-sub000/permission"
)

// Role is one of the four identity roles. The zero value is not a valid role.
type Role uint8

const (
	Member Role = iota + 1
	CompanyAdmin
	Broker
	SuperAdmin
)

// ErrUnknownRole is returned by Parse for names outside the table.
var ErrUnknownRole = errors.New("unknown role")

// Capability names registered in [Capabilities].
const (
	CapProfileRead        = "profile:read"
	CapCompanyRead        = "company:read"
	CapCompanyManage      = "company:manage"
	CapCompanyInvite      = "company:invite"
	CapBrokerLinkRead     = "broker:link:read"
	CapIdentityAdminister = "identity:administer"
)

// Capabilities is the registry backing every role mask. It is frozen once the
// table below is built.
var Capabilities = permission.NewRegistry()

type definition struct {
	name      string
	mask      permission.Mask
	invitable bool
}

var table map[Role]definition

func init() {
	for _, c := range []string{
		CapProfileRead,
		CapCompanyRead,
		CapCompanyManage,
		CapCompanyInvite,
		CapBrokerLinkRead,
		CapIdentityAdminister,
	} {
		Capabilities.MustRegister(c)
	}
	Capabilities.Freeze()

	table = map[Role]definition{
		Member: {
			name:      "member",
			mask:      mustCompose(CapProfileRead, CapCompanyRead),
			invitable: true,
		},
		CompanyAdmin: {
			name:      "company-admin",
			mask:      mustCompose(CapProfileRead, CapCompanyRead, CapCompanyManage, CapCompanyInvite),
			invitable: true,
		},
		Broker: {
			name:      "broker",
			mask:      mustCompose(CapProfileRead, CapCompanyRead, CapBrokerLinkRead),
			invitable: true,
		},
		SuperAdmin: {
			name: "super-admin",
			mask: permission.Mask(0).With(permission.RootBit),
		},
	}
}

func mustCompose(names ...string) permission.Mask {
	m, err := Capabilities.Compose(names...)
	if err != nil {
		panic("role: " + err.Error())
	}
	return m
}

// All returns every role in declaration order.
func All() []Role {
	return []Role{Member, CompanyAdmin, Broker, SuperAdmin}
}

// Parse maps a wire name ("member", "company-admin", "broker", "super-admin")
// to a Role. Matching ignores case and surrounding space.
func Parse(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for r, def := range table {
		if def.name == name {
			return r, nil
		}
	}
	return 0, ErrUnknownRole
}

// Valid reports whether r is in the table.
func (r Role) Valid() bool {
	_, ok := table[r]
	return ok
}

// String returns the wire name, or "unknown".
func (r Role) String() string {
	if def, ok := table[r]; ok {
		return def.name
	}
	return "unknown"
}

// Mask returns the capability mask for r. Unknown roles get an empty mask.
func (r Role) Mask() permission.Mask {
	return table[r].mask
}

// Invitable reports whether an invitation may grant r. Super-admins are
// provisioned out of band.
func (r Role) Invitable() bool {
	return table[r].invitable
}

// Can reports whether r carries the named capability.
func (r Role) Can(capability string) bool {
	bit, ok := Capabilities.Bit(capability)
	if !ok {
		return false
	}
	return r.Mask().Has(bit)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
