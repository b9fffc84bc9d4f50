// identity/provider.go
package identity

import (
	"strings"
	"unicode"

	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/reactive"
)

// Provider supplies the current principal; nil means signed out.
type Provider interface {
	Current() *domain.Principal
	Watch(fn func(*domain.Principal)) (cancel func())
}

// Holder is a Provider whose principal is set by whoever performs sign-in.
type Holder struct {
	v *reactive.Value[*domain.Principal]
}

func NewHolder(p *domain.Principal) *Holder {
	return &Holder{v: reactive.NewValue(p)}
}

func (h *Holder) Current() *domain.Principal { return h.v.Get() }

func (h *Holder) Watch(fn func(*domain.Principal)) func() { return h.v.Watch(fn) }

func (h *Holder) SignIn(p domain.Principal) { h.v.Set(&p) }

// SignInAsGuest installs an anonymous principal with the given uid.
func (h *Holder) SignInAsGuest(uid string) {
	h.v.Set(&domain.Principal{UID: uid, IsAnonymous: true})
}

func (h *Holder) SignOut() { h.v.Set(nil) }

// DisplayName is the label shown for a principal.
func DisplayName(p *domain.Principal) string {
	if p == nil || p.IsAnonymous {
		return "Gast"
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Email != "" {
		local, _, _ := strings.Cut(p.Email, "@")
		local = strings.NewReplacer(".", " ", "_", " ").Replace(local)
		r := []rune(local)
		if len(r) == 0 {
			return "User"
		}
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	}
	return "User"
}
