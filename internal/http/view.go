package httpx

import (
	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/http/staffnav"
)

type roleView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	IsSystem  bool   `json:"is_system"`
	Superuser bool   `json:"superuser"`
}

type identityView struct {
	ID          int64    `json:"id"`
	Login       string   `json:"login"`
	DisplayName string   `json:"display_name"`
	Role        roleView `json:"role"`
}

// sessionView is the JSON shape of a session snapshot. The credential is
// never included.
type sessionView struct {
	Phase       domainauth.Phase        `json:"phase"`
	Demo        bool                    `json:"demo"`
	Identity    *identityView           `json:"identity,omitempty"`
	Permissions []domainauth.Permission `json:"permissions"`
	Navigation  []staffnav.Entry        `json:"navigation"`
	Fallback    string                  `json:"fallback,omitempty"`
}

func newSessionView(sess domainauth.Session) sessionView {
	acc := staffnav.NewAccess(sess)
	v := sessionView{
		Phase:       sess.Phase,
		Demo:        sess.IsDemo(),
		Permissions: acc.Granted(),
		Navigation:  acc.Navigation(),
	}
	if id := sess.Identity; id != nil {
		v.Identity = &identityView{
			ID:          id.ID,
			Login:       id.Login,
			DisplayName: id.DisplayName,
			Role: roleView{
				ID:        id.Role.ID,
				Name:      id.Role.Name,
				Slug:      id.Role.Slug,
				IsSystem:  id.Role.IsSystem,
				Superuser: id.Role.IsSuperuser(),
			},
		}
		v.Fallback = acc.Fallback()
	}
	return v
}
