package auth

import (
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	defaultHeaderName   = "Authorization"
	defaultHeaderPrefix = "Bearer"
	defaultBodyField    = "access_token"
)

func placeToken(connector *models.Connector, target *Target) error {
	cfg := connector.AuthConfig

	if cfg.TokenLocation == models.TokenLocationBody {
		field := cfg.BodyField
		if field == "" {
			field = defaultBodyField
		}

		var body map[string]any

		switch payload := target.Body.(type) {
		case nil:
			body = map[string]any{}
		case map[string]any:
			body = make(map[string]any, len(payload)+1)
			for k, v := range payload {
				body[k] = v
			}
		default:
			return protocol.Errorf(protocol.KindAuth, "token location body requires a JSON object payload, got %T", payload)
		}

		body[field] = cfg.AccessToken
		target.Body = body

		return nil
	}

	name := cfg.HeaderName
	if name == "" {
		name = defaultHeaderName
	}

	prefix := defaultHeaderPrefix
	if cfg.HeaderPrefix != nil {
		prefix = strings.TrimSpace(*cfg.HeaderPrefix)
	}

	value := cfg.AccessToken
	if prefix != "" {
		value = prefix + " " + value
	}

	if cfg.PreserveHeaderCase {
		target.Header[name] = []string{value}

		return nil
	}

	target.Header.Set(name, value)

	return nil
}
