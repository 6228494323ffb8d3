package models

// NodeTypeInfo is the catalogue entry of a registered node type.
type NodeTypeInfo struct {
	Type        NodeType       `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}
