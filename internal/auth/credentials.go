// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package auth

import (
	"net/http"
	"strings"
)

// SubprotocolPrefix marks a bearer token passed as a WebSocket subprotocol,
// for browsers that cannot set headers on the handshake.
const SubprotocolPrefix = "bearer."

// BearerFromHeader extracts the token from an "Authorization: Bearer" header.
func BearerFromHeader(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// HandshakeCredential extracts the credential for a WebSocket handshake.
// Sources in order: Authorization header, token query parameter,
// Sec-WebSocket-Protocol entry "bearer.<token>". The second return value is
// the matching subprotocol, which the upgrader must echo back.
func HandshakeCredential(r *http.Request) (token, subprotocol string) {
	if token = BearerFromHeader(r); token != "" {
		return token, ""
	}
	if token = strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, ""
	}
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, proto := range strings.Split(header, ",") {
			proto = strings.TrimSpace(proto)
			if strings.HasPrefix(proto, SubprotocolPrefix) {
				return strings.TrimPrefix(proto, SubprotocolPrefix), proto
			}
		}
	}
	return "", ""
}
