// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"net/http"
	"strings"
	"time"
)

// Session cookie defaults.
const (
	DefaultCookieName    = "token"
	DefaultSessionTTL    = 7 * 24 * time.Hour
	DefaultShortLivedTTL = time.Hour
)

// Carrier moves session tokens in and out of HTTP cookies. It never inspects
// token contents.
type Carrier struct {
	Name   string
	Path   string
	Domain string

	// Secure marks cookies as HTTPS-only; set in production-like environments.
	Secure bool
}

// NewCarrier returns a Carrier for the default cookie name.
func NewCarrier(secure bool) *Carrier {
	return &Carrier{
		Name:   DefaultCookieName,
		Path:   "/",
		Secure: secure,
	}
}

// Attach builds the cookie carrying token for ttl. A ttl under one second
// produces a cookie that expires immediately.
func (c *Carrier) Attach(token string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if maxAge <= 0 {
		maxAge = -1
	}
	cookie := c.base()
	cookie.Value = token
	cookie.MaxAge = maxAge
	return cookie
}

// Clear builds a cookie that removes the session cookie from the client.
func (c *Carrier) Clear() *http.Cookie {
	cookie := c.base()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	return cookie
}

// Extract returns the token from the session cookie, falling back to an
// "Authorization: Bearer" header.
func (c *Carrier) Extract(h http.Header) (string, bool) {
	req := http.Request{Header: h}
	if cookie, err := req.Cookie(c.Name); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	scheme, token, ok := strings.Cut(h.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	return "", false
}

func (c *Carrier) base() *http.Cookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     c.Name,
		Path:     path,
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
