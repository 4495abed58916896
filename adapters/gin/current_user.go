package authgin

import (
	"github.com/gin-gonic/gin"
)

// CallerView is a flat snapshot of the verified caller for handlers.
type CallerView struct {
	// Identity
	ObjectID          string `json:"oid,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	TenantID          string `json:"tid,omitempty"`

	// Access
	Scopes []string `json:"scopes,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	// App is the calling client application (azp, or appid on v1 tokens).
	App string `json:"app,omitempty"`

	// Source is "delegated" when the token carries scp, "app" otherwise, "none" when unauthenticated.
	Source string `json:"source"`
}

// CurrentCaller returns the caller verified by RequireBearer.
func CurrentCaller(c *gin.Context) (CallerView, bool) {
	cl, ok := ClaimsFromGin(c)
	if !ok {
		return CallerView{Source: "none"}, false
	}
	app := cl.String("azp")
	if app == "" {
		app = cl.String("appid")
	}
	source := "app"
	if len(cl.Scopes()) > 0 {
		source = "delegated"
	}
	return CallerView{
		ObjectID:          cl.ObjectID(),
		Name:              cl.Name(),
		PreferredUsername: cl.PreferredUsername(),
		TenantID:          cl.TenantID(),
		Scopes:            cl.Scopes(),
		Roles:             cl.Roles(),
		App:               app,
		Source:            source,
	}, true
}
