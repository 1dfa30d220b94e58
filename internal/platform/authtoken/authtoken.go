// Package authtoken reads identity claims from the viewer's access token.
//
// Signatures are not verified here: the token is the viewer's own credential
// and the servers that receive it stay authoritative. The subject is used
// only for client-side hints such as vote eligibility.
package authtoken

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// subjectClaims lists claim names checked for the viewer id, in order.
var subjectClaims = []string{"sub", "user_id", "userId", "id"}

// Subject returns the viewer id carried by a bearer token.
func Subject(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", errors.New("access token is required")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}

	for _, name := range subjectClaims {
		switch value := claims[name].(type) {
		case string:
			if value = strings.TrimSpace(value); value != "" {
				return value, nil
			}
		case float64:
			return fmt.Sprintf("%.0f", value), nil
		}
	}
	return "", errors.New("access token carries no subject claim")
}
