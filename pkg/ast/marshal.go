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

package ast

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// wireNode mirrors §6's AST wire shape, shared by both the JSON and
// MessagePack codecs: type, range, optional children, optional value, and
// data fields flattened onto the node rather than nested under a "data"
// key. This is the one shape guests decode against, so both Marshal paths
// build it through toWire rather than drifting independently.
type wireNode struct {
	Type       NodeType    `json:"type" msgpack:"type"`
	Range      [2]int      `json:"range" msgpack:"range"`
	Children   []*wireNode `json:"children,omitempty" msgpack:"children,omitempty"`
	Value      *string     `json:"value,omitempty" msgpack:"value,omitempty"`
	Depth      int         `json:"depth,omitempty" msgpack:"depth,omitempty"`
	URL        string      `json:"url,omitempty" msgpack:"url,omitempty"`
	Title      string      `json:"title,omitempty" msgpack:"title,omitempty"`
	Ordered    bool        `json:"ordered,omitempty" msgpack:"ordered,omitempty"`
	Lang       string      `json:"lang,omitempty" msgpack:"lang,omitempty"`
	Identifier string      `json:"identifier,omitempty" msgpack:"identifier,omitempty"`
	Label      string      `json:"label,omitempty" msgpack:"label,omitempty"`
}

func toWire(n *Node) *wireNode {
	if n == nil {
		return nil
	}
	w := &wireNode{
		Type:  n.Type,
		Range: [2]int{n.Span.Start, n.Span.End},
		Value: n.Value,
	}
	if n.Data != nil {
		w.Depth = n.Data.Depth
		w.URL = n.Data.URL
		w.Title = n.Data.Title
		w.Ordered = n.Data.Ordered
		w.Lang = n.Data.Lang
		w.Identifier = n.Data.Identifier
		w.Label = n.Data.Label
	}
	if n.Children != nil {
		w.Children = make([]*wireNode, 0, len(n.Children))
		for _, c := range n.Children {
			w.Children = append(w.Children, toWire(c))
		}
	}
	return w
}

func marshalNode(n *Node) ([]byte, error) {
	return json.Marshal(toWire(n))
}

func marshalNodeMsgpack(n *Node) ([]byte, error) {
	return msgpack.Marshal(toWire(n))
}
