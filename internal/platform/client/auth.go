package client

import (
	"context"
	"net/http"

	"livelocal/internal/remote"
)

// clientAuth implements remote.Auth over the session endpoints.
type clientAuth Client

type sessionResponse struct {
	User  remote.User `json:"user"`
	Token string      `json:"token"`
}

func (a *clientAuth) SignUp(ctx context.Context, email, password, displayName string) (*remote.User, error) {
	body := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}
	var out sessionResponse
	if err := (*Client)(a).post(ctx, "/api/v1/auth/register", body, &out); err != nil {
		return nil, err
	}
	a.setSession(&out.User, out.Token)
	return &out.User, nil
}

func (a *clientAuth) SignIn(ctx context.Context, email, password string) (*remote.User, error) {
	body := map[string]string{"email": email, "password": password}
	var out sessionResponse
	if err := (*Client)(a).post(ctx, "/api/v1/auth/login", body, &out); err != nil {
		return nil, err
	}
	a.setSession(&out.User, out.Token)
	return &out.User, nil
}

func (a *clientAuth) SignOut(ctx context.Context) error {
	c := (*Client)(a)
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err == nil {
		resp.Body.Close()
	}
	// The local session ends regardless of what the server said.
	a.setSession(nil, "")
	return nil
}

func (a *clientAuth) CurrentUser() *remote.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

func (a *clientAuth) OnAuthStateChange(handler remote.AuthHandler) remote.Subscription {
	a.mu.Lock()
	id := a.nextListener
	a.nextListener++
	a.authListeners[id] = handler
	a.mu.Unlock()
	return remote.UnsubscribeFunc(func() {
		a.mu.Lock()
		delete(a.authListeners, id)
		a.mu.Unlock()
	})
}

func (a *clientAuth) setSession(user *remote.User, token string) {
	a.mu.Lock()
	a.user = user
	a.token = token
	handlers := make([]remote.AuthHandler, 0, len(a.authListeners))
	for _, h := range a.authListeners {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()
	for _, h := range handlers {
		var u *remote.User
		if user != nil {
			copied := *user
			u = &copied
		}
		h(u)
	}
}

var _ remote.Auth = (*clientAuth)(nil)
