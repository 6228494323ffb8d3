package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// NodeType identifies the executor a node dispatches to.
type NodeType string

// Built-in node types.
const (
	NodeTypeHTTPRequest NodeType = "http_request"
	NodeTypeTransform   NodeType = "transform"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeLoop        NodeType = "loop"
	NodeTypeTable       NodeType = "table"
)

// ErrUnknownNodeType is returned when decoding the config of an unregistered node type.
var ErrUnknownNodeType = errors.New("unknown node type")

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// NodeConfig is the typed configuration of a node. Exactly one variant exists per node type.
type NodeConfig interface {
	NodeType() NodeType
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int `json:"attempts" validate:"min=0,max=10"`
	Delay    int `json:"delay"    validate:"min=0,max=30000"` // milliseconds
}

// HTTPRequestConfig configures an http_request node. Either ConnectorID (with Endpoint)
// or an absolute URL must be given.
type HTTPRequestConfig struct {
	ConnectorID    string         `json:"connectorId,omitempty"`
	URL            string         `json:"url,omitempty"            validate:"required_without=ConnectorID"`
	Endpoint       string         `json:"endpoint,omitempty"`
	Method         string         `json:"method"                   validate:"oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers        map[string]any `json:"headers,omitempty"`
	Query          map[string]any `json:"query,omitempty"`
	Body           any            `json:"body,omitempty"`
	TimeoutSeconds int            `json:"timeoutSeconds,omitempty" validate:"omitempty,min=1,max=300"`
	Retries        RetryConfig    `json:"retries"`
}

func (c *HTTPRequestConfig) NodeType() NodeType { return NodeTypeHTTPRequest }

// Timeout returns the per-request timeout, defaulting to 30 seconds.
func (c *HTTPRequestConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}

	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *HTTPRequestConfig) normalize() {
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = "GET"
	}

	if c.Retries.Attempts == 0 {
		c.Retries.Attempts = 1
	}
}

// TransformConfig configures a transform node: a JavaScript expression evaluated against the scope.
type TransformConfig struct {
	Expression string `json:"expression"          validate:"required"`
	TimeoutMs  int    `json:"timeoutMs,omitempty" validate:"omitempty,min=1,max=60000"`
}

func (c *TransformConfig) NodeType() NodeType { return NodeTypeTransform }

// ConditionConfig configures a condition node. The expression must evaluate to a boolean.
type ConditionConfig struct {
	Expression string `json:"expression"          validate:"required"`
	TimeoutMs  int    `json:"timeoutMs,omitempty" validate:"omitempty,min=1,max=60000"`
}

func (c *ConditionConfig) NodeType() NodeType { return NodeTypeCondition }

// LoopConfig configures a loop node. Items must resolve to a sequence at run time.
type LoopConfig struct {
	Items any `json:"items" validate:"required"`
}

func (c *LoopConfig) NodeType() NodeType { return NodeTypeLoop }

// Table operations.
const (
	TableOperationRead  = "read"
	TableOperationWrite = "write"
)

// TableConfig configures a table node.
type TableConfig struct {
	Operation string         `json:"operation"        validate:"oneof=read write"`
	TableID   string         `json:"tableId"          validate:"required"`
	Filter    map[string]any `json:"filter,omitempty"`
	Data      map[string]any `json:"data,omitempty"   validate:"required_if=Operation write"`
}

func (c *TableConfig) NodeType() NodeType { return NodeTypeTable }

type normalizer interface {
	normalize()
}

// RawConfig carries the untyped config of node types registered by plugins.
type RawConfig struct {
	Type   NodeType
	Values map[string]any
}

func (c *RawConfig) NodeType() NodeType { return c.Type }

// DecodeNodeConfig converts a stored config object into the typed variant for nodeType
// and validates it.
func DecodeNodeConfig(nodeType NodeType, raw map[string]any) (NodeConfig, error) {
	cfg, err := decodeNodeConfig(nodeType, raw)
	if err != nil {
		return nil, err
	}

	err = configValidator.Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	return cfg, nil
}

// CheckNodeConfig checks a stored config before interpolation. Values holding {{...}}
// tokens are left out of the check, and field rules are only enforced when the config
// holds no tokens at all.
func CheckNodeConfig(nodeType NodeType, raw map[string]any) error {
	stripped, templated := stripTemplates(raw)

	values, _ := stripped.(map[string]any)

	cfg, err := decodeNodeConfig(nodeType, values)
	if err != nil {
		return err
	}

	if templated {
		return nil
	}

	err = configValidator.Struct(cfg)
	if err != nil {
		return fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	return nil
}

func decodeNodeConfig(nodeType NodeType, raw map[string]any) (NodeConfig, error) {
	var cfg NodeConfig

	switch nodeType {
	case NodeTypeHTTPRequest:
		cfg = &HTTPRequestConfig{}
	case NodeTypeTransform:
		cfg = &TransformConfig{}
	case NodeTypeCondition:
		cfg = &ConditionConfig{}
	case NodeTypeLoop:
		cfg = &LoopConfig{}
	case NodeTypeTable:
		cfg = &TableConfig{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}

	if raw == nil {
		raw = map[string]any{}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s config: %w", nodeType, err)
	}

	err = json.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	if n, ok := cfg.(normalizer); ok {
		n.normalize()
	}

	return cfg, nil
}

func stripTemplates(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, "{{") {
			return nil, true
		}

		return v, false
	case map[string]any:
		out := make(map[string]any, len(v))
		templated := false

		for key, item := range v {
			stripped, t := stripTemplates(item)
			templated = templated || t

			if t && stripped == nil {
				continue
			}

			out[key] = stripped
		}

		return out, templated
	case []any:
		out := make([]any, len(v))
		templated := false

		for i, item := range v {
			var t bool

			out[i], t = stripTemplates(item)
			templated = templated || t
		}

		return out, templated
	default:
		return v, false
	}
}

// ScriptFields lists the config keys of nodeType that hold JavaScript source.
// Interpolation substitutes values into these as script literals.
func ScriptFields(nodeType NodeType) []string {
	switch nodeType {
	case NodeTypeTransform, NodeTypeCondition:
		return []string{"expression"}
	default:
		return nil
	}
}
