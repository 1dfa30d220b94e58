// Package discovery centralizes in-network addresses of the services a
// campaign view talks to.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceAPI is the platform REST API serving campaigns, donations and
	// escrow.
	ServiceAPI = "api"
	// ServiceRelay is the realtime relay identity.
	ServiceRelay = "relay"
	// ServiceWatch is the watch process identity.
	ServiceWatch = "watch"
)

type endpoint struct {
	grpcPort int
	httpPort int
	basePath string
}

// endpoints mirrors topology/services.json.
var endpoints = map[string]endpoint{
	ServiceAPI:   {httpPort: 5000, basePath: "/api"},
	ServiceRelay: {httpPort: 8090, basePath: "/ws"},
	ServiceWatch: {grpcPort: 8092, httpPort: 9090},
}

// DefaultGRPCAddr returns the in-network gRPC address for service, or "" when
// the service exposes none.
func DefaultGRPCAddr(service string) string {
	service = strings.TrimSpace(service)
	return hostPort(service, endpoints[service].grpcPort)
}

// DefaultHTTPAddr returns the in-network HTTP address for service.
func DefaultHTTPAddr(service string) string {
	service = strings.TrimSpace(service)
	return hostPort(service, endpoints[service].httpPort)
}

// ListenAddr returns the wildcard HTTP listen address a service binds by
// default.
func ListenAddr(service string) string {
	port := endpoints[strings.TrimSpace(service)].httpPort
	if port <= 0 {
		return ""
	}
	return ":" + strconv.Itoa(port)
}

// OrDefaultHTTPBaseURL returns value when set, otherwise
// http://<service-host:port><base path>.
func OrDefaultHTTPBaseURL(value, service string) string {
	return orDefaultURL(value, "http", service)
}

// OrDefaultWSURL returns value when set, otherwise
// ws://<service-host:port><base path>.
func OrDefaultWSURL(value, service string) string {
	return orDefaultURL(value, "ws", service)
}

func orDefaultURL(value, scheme, service string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	service = strings.TrimSpace(service)
	addr := DefaultHTTPAddr(service)
	if addr == "" {
		return ""
	}
	return scheme + "://" + addr + endpoints[service].basePath
}

func hostPort(service string, port int) string {
	if service == "" || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}
