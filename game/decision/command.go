package decision

import (
	"fmt"
	"strings"
)

// Verb is one word of the outgoing command vocabulary.
type Verb string

const (
	VerbAttack   Verb = "attack"
	VerbTech     Verb = "tech"
	VerbTaunt    Verb = "taunt"
	VerbSkill    Verb = "skill"
	VerbItem     Verb = "item"
	VerbEquip    Verb = "equip"
	VerbStyle    Verb = "style"
	VerbEnter    Verb = "enter"
	VerbViewInfo Verb = "view-info"
)

// Form selects how a command addresses its actor.
type Form uint8

const (
	FormSelf Form = iota
	FormClone
	FormControlled
)

func (f Form) String() string {
	switch f {
	case FormClone:
		return "clone"
	case FormControlled:
		return "controlled"
	}
	return "self"
}

// Command is one outgoing line.
type Command struct {
	Form    Form   `json:"form"`
	Actor   string `json:"actor"`
	Verb    Verb   `json:"verb"`
	Ability string `json:"ability,omitempty"`
	Target  string `json:"target,omitempty"`
	Subject string `json:"subject,omitempty"` // catalog kind for view-info
}

// String renders the command line:
//
//	self:       !tech Fireball Bob
//	clone:      !shadow tech Fireball Bob
//	controlled: !Imp_summon tech Fireball Bob
func (c Command) String() string {
	var b strings.Builder
	b.WriteByte('!')
	switch c.Form {
	case FormClone:
		b.WriteString("shadow ")
	case FormControlled:
		b.WriteString(c.Actor)
		b.WriteByte(' ')
	}
	b.WriteString(string(c.Verb))
	var args []string
	switch c.Verb {
	case VerbStyle:
		args = []string{"change", c.Ability}
	case VerbViewInfo:
		args = []string{c.Subject, c.Ability}
	case VerbAttack, VerbTaunt:
		args = []string{c.Target}
	default:
		args = []string{c.Ability, c.Target}
	}
	for _, a := range args {
		if a != "" {
			b.WriteByte(' ')
			b.WriteString(a)
		}
	}
	return b.String()
}

// Validate rejects commands that cannot be rendered meaningfully.
func (c Command) Validate() error {
	switch c.Verb {
	case VerbAttack, VerbTaunt:
		if c.Target == "" {
			return fmt.Errorf("%w: %s without target", ErrUnknownAction, c.Verb)
		}
	case VerbTech, VerbItem, VerbEquip, VerbStyle, VerbSkill:
		if c.Ability == "" {
			return fmt.Errorf("%w: %s without ability", ErrUnknownAction, c.Verb)
		}
	case VerbViewInfo:
		if c.Ability == "" || c.Subject == "" {
			return fmt.Errorf("%w: view-info needs kind and name", ErrUnknownAction)
		}
	case VerbEnter:
	default:
		return fmt.Errorf("%w: verb %q", ErrUnknownAction, c.Verb)
	}
	if c.Form == FormControlled && c.Actor == "" {
		return fmt.Errorf("%w: controlled command without actor", ErrUnknownAction)
	}
	return nil
}
