// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ast defines the document AST shape the core operates on. The
// parsers that produce these trees (Markdown, plain text) live outside
// this core and are referenced only by this output contract.
package ast

import "github.com/kraklabs/tsuzulint/pkg/diag"

// NodeType is the closed enumeration of block and inline node kinds.
type NodeType string

const (
	// Block types.
	Document           NodeType = "Document"
	Paragraph          NodeType = "Paragraph"
	Header             NodeType = "Header"
	BlockQuote         NodeType = "BlockQuote"
	List               NodeType = "List"
	ListItem           NodeType = "ListItem"
	CodeBlock          NodeType = "CodeBlock"
	HorizontalRule     NodeType = "HorizontalRule"
	Html               NodeType = "Html"
	Table              NodeType = "Table"
	TableRow           NodeType = "TableRow"
	TableCell          NodeType = "TableCell"
	FootnoteDefinition NodeType = "FootnoteDefinition"

	// Inline types.
	Str              NodeType = "Str"
	Break            NodeType = "Break"
	Emphasis         NodeType = "Emphasis"
	Strong           NodeType = "Strong"
	Delete           NodeType = "Delete"
	Code             NodeType = "Code"
	Link             NodeType = "Link"
	Image            NodeType = "Image"
	LinkReference    NodeType = "LinkReference"
	ImageReference   NodeType = "ImageReference"
	Definition       NodeType = "Definition"
	FootnoteReference NodeType = "FootnoteReference"
)

// blockTypes is the set of node types that may appear as a direct child of
// Document and therefore count as a "block" for incremental caching (§4.8).
var blockTypes = map[NodeType]bool{
	Paragraph:          true,
	Header:              true,
	BlockQuote:          true,
	List:                true,
	CodeBlock:           true,
	HorizontalRule:      true,
	Html:                true,
	Table:               true,
	FootnoteDefinition:  true,
}

// IsBlockType reports whether t can appear as a direct Document child.
func IsBlockType(t NodeType) bool { return blockTypes[t] }

// Data carries the per-type metadata fields described in §3. Only the
// fields relevant to a node's type are populated; the rest are zero. Data
// is never encoded directly: both MarshalJSON and MarshalMsgpack flatten
// it onto the wire node through toWire (marshal.go), so it carries no
// json/msgpack tags of its own.
type Data struct {
	Depth      int
	URL        string
	Title      string
	Ordered    bool
	Lang       string
	Identifier string
	Label      string
}

// Node is an arena-allocated tree node for a single parse. Nodes do not
// outlive the source text they reference; transformations return new
// nodes rather than mutating in place. Encoding (MarshalJSON,
// MarshalMsgpack) goes through the shared wireNode shape in marshal.go;
// Node's own fields carry no codec tags — Go-side callers use Span/Data,
// the wire shape is range/flattened-data.
type Node struct {
	Type     NodeType
	Span     diag.Span
	Children []*Node
	Value    *string
	Data     *Data
}

// MarshalJSON flattens Data's fields alongside the node per §6's AST JSON
// shape ("flattened data fields"), while keeping Range as a [start, end]
// pair rather than the Span struct's field names.
func (n *Node) MarshalJSON() ([]byte, error) {
	return marshalNode(n)
}

// MarshalMsgpack emits the same range+flattened-data wire shape as
// MarshalJSON. This is the encoding pluginhost.PrepareLintRequest actually
// sends to guests, so it must match §6's AST shape exactly rather than
// falling back to the codec's default encoding of Node's Go field names.
func (n *Node) MarshalMsgpack() ([]byte, error) {
	return marshalNodeMsgpack(n)
}

// Walk calls fn for n and, depth-first, every descendant. fn returning
// false stops descent into that node's children (siblings still visit).
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindAll returns every descendant (including n) whose Type matches.
func (n *Node) FindAll(t NodeType) []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if c.Type == t {
			out = append(out, c)
		}
		return true
	})
	return out
}

