package figma

import (
	"encoding/json"
	"fmt"
)

// NodeType is the upstream node kind ("FRAME", "TEXT", ...).
type NodeType string

const (
	TypeDocument     NodeType = "DOCUMENT"
	TypeCanvas       NodeType = "CANVAS"
	TypeFrame        NodeType = "FRAME"
	TypeComponent    NodeType = "COMPONENT"
	TypeComponentSet NodeType = "COMPONENT_SET"
	TypeGroup        NodeType = "GROUP"
	TypeSection      NodeType = "SECTION"
	TypeInstance     NodeType = "INSTANCE"
	TypeText         NodeType = "TEXT"
)

// containerTypes are the only kinds that carry children.
var containerTypes = map[NodeType]bool{
	TypeDocument:     true,
	TypeCanvas:       true,
	TypeFrame:        true,
	TypeComponent:    true,
	TypeComponentSet: true,
	TypeGroup:        true,
	TypeSection:      true,
	TypeInstance:     true,
}

// Node is one node of the document tree: *Container, *Text or *Leaf.
type Node interface {
	Base() *NodeBase
}

// NodeBase holds the fields shared by every node kind.
type NodeBase struct {
	ID      string
	Name    string
	Type    NodeType
	Visible bool // false only when the upstream says visible:false
	Removed bool
}

func (b *NodeBase) Base() *NodeBase { return b }

// Container is a node kind that can hold children.
type Container struct {
	NodeBase
	Children []Node
}

// Text is a TEXT node.
type Text struct {
	NodeBase
	Characters string
}

// Leaf is any other node kind.
type Leaf struct {
	NodeBase
}

// Document is the decoded response of the file endpoint.
type Document struct {
	Name         string
	LastModified string
	Version      string
	Root         *Container
}

// Canvas returns the first top-level page with the given name, or nil.
func (d *Document) Canvas(name string) *Container {
	if d == nil || d.Root == nil {
		return nil
	}
	for _, child := range d.Root.Children {
		if c, ok := child.(*Container); ok && c.Type == TypeCanvas && c.Name == name {
			return c
		}
	}
	return nil
}

type rawNode struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       NodeType   `json:"type"`
	Visible    *bool      `json:"visible"`
	Removed    bool       `json:"removed"`
	Characters string     `json:"characters"`
	Children   []*rawNode `json:"children"`
}

type rawFile struct {
	Name         string   `json:"name"`
	LastModified string   `json:"lastModified"`
	Version      string   `json:"version"`
	Document     *rawNode `json:"document"`
}

// DecodeDocument decodes a file endpoint body into the typed tree.
func DecodeDocument(body []byte) (*Document, error) {
	var raw rawFile
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw.Document == nil {
		return nil, fmt.Errorf("missing document node")
	}
	root, ok := convert(raw.Document).(*Container)
	if !ok {
		return nil, fmt.Errorf("document root has type %q", raw.Document.Type)
	}
	return &Document{
		Name:         raw.Name,
		LastModified: raw.LastModified,
		Version:      raw.Version,
		Root:         root,
	}, nil
}

func convert(r *rawNode) Node {
	base := NodeBase{
		ID:      r.ID,
		Name:    r.Name,
		Type:    r.Type,
		Visible: r.Visible == nil || *r.Visible,
		Removed: r.Removed,
	}
	switch {
	case r.Type == TypeText:
		return &Text{NodeBase: base, Characters: r.Characters}
	case containerTypes[r.Type]:
		c := &Container{NodeBase: base}
		if len(r.Children) > 0 {
			c.Children = make([]Node, 0, len(r.Children))
		}
		for _, child := range r.Children {
			if child == nil {
				continue
			}
			c.Children = append(c.Children, convert(child))
		}
		return c
	default:
		return &Leaf{NodeBase: base}
	}
}

// Walk visits n and its descendants depth-first, pre-order, children in
// array order. fn receives each node and its parent (nil for n itself).
func Walk(n Node, fn func(node, parent Node)) {
	walk(n, nil, fn)
}

func walk(n, parent Node, fn func(node, parent Node)) {
	fn(n, parent)
	if c, ok := n.(*Container); ok {
		for _, child := range c.Children {
			walk(child, n, fn)
		}
	}
}
