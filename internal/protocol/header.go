// Package protocol implements ACP envelope validation and the ACP-Agent
// request header. Transport-agnostic core: the REST middleware extracts the
// header, MCP handlers pass the equivalent meta field explicitly.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// AgentHeader is the request header carrying agent client identification.
const AgentHeader = "ACP-Agent"

// AgentHello is the parsed content of an ACP-Agent header.
type AgentHello struct {
	// ProfileURL points at the agent's published profile. Informational;
	// recorded in audit logs.
	ProfileURL string

	// ClientVersion is the semver of the agent's ACP client library
	// (e.g. "v1.2.0"), used for the minimum-version gate.
	ClientVersion string
}

// ParseAgentHeader extracts profile URL and client version from an ACP-Agent
// header. Format is an RFC 8941 Dictionary:
//
//	profile="https://agent.example/profile";client="acp-go/1.2.0"
//
// The client parameter is optional. Returns an error if the header is empty,
// malformed, or missing the profile key.
func ParseAgentHeader(header string) (*AgentHello, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, errors.New("empty ACP-Agent header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, fmt.Errorf("invalid ACP-Agent header: %w", err)
	}

	member, ok := dict.Get("profile")
	if !ok {
		return nil, errors.New("profile key not found in ACP-Agent header")
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return nil, errors.New("profile value must be an item")
	}

	url, ok := item.Value.(string)
	if !ok {
		return nil, errors.New("profile value must be a string")
	}

	hello := &AgentHello{ProfileURL: url}

	// client="name/semver" is optional, carried either as a parameter of the
	// profile item or as its own dictionary key. Malformed values are ignored
	// rather than rejected, the version gate treats them as unversioned.
	if raw, ok := clientParam(item); ok {
		hello.ClientVersion = parseClientVersion(raw)
	} else if member, ok := dict.Get("client"); ok {
		if item, ok := member.(httpsfv.Item); ok {
			if raw, ok := item.Value.(string); ok {
				hello.ClientVersion = parseClientVersion(raw)
			}
		}
	}

	return hello, nil
}

// clientParam reads the client parameter from the profile item, if present.
func clientParam(item httpsfv.Item) (string, bool) {
	if item.Params == nil {
		return "", false
	}
	value, ok := item.Params.Get("client")
	if !ok {
		return "", false
	}
	raw, ok := value.(string)
	return raw, ok
}

// parseClientVersion extracts the semver part of a "name/version" product
// token, normalized with a leading "v". Returns "" if no version is present.
func parseClientVersion(raw string) string {
	_, version, found := strings.Cut(raw, "/")
	if !found || version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return version
}
