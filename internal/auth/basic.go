package auth

import (
	"fmt"
	"net/http"
)

// DeviceHeader names the header a device agent uses to present its
// persisted device identifier.
const DeviceHeader = "X-Device-ID"

type BasicAuth struct {
	realm string
	users map[string]string
}

// NewBasicAuth authenticates room members against a static user:password
// set. The household deployment this serves has no identity provider.
func NewBasicAuth(realm string, users map[string]string) (AuthProvider, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("missing users")
	}
	for user, password := range users {
		if user == "" || password == "" {
			return nil, fmt.Errorf("empty username or password")
		}
	}
	return &BasicAuth{realm: realm, users: users}, nil
}

func (b *BasicAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b.basicAuth(next, w, r)
		})
	}
}

func (b *BasicAuth) basicAuth(next http.Handler, w http.ResponseWriter, r *http.Request) {
	user, password, ok := r.BasicAuth()
	if !ok || b.users[user] != password {
		w.Header().Add("WWW-Authenticate", `Basic realm="Please provide your system credentials", charset="UTF-8"`)
		http.Error(w, "HTTP Basic auth is required", http.StatusUnauthorized)
		return
	}
	authCtx := AuthContext{
		AuthMethod: "basic",
		UserName:   user,
		DeviceID:   r.Header.Get(DeviceHeader),
	}
	ctx := NewContext(r.Context(), &authCtx)
	r = r.WithContext(ctx)
	next.ServeHTTP(w, r)
}
