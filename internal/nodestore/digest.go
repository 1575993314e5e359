package nodestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/aweris/fedfs/internal/graph"
)

// digest hashes a node's own content: identifier, ordered child segments and
// properties sorted by name. Children's content is not included, so a change
// deep in the subtree does not alter an ancestor's digest.
//
// Format: "node {size}\0{id:16}{children}{properties}" → SHA256
// Child entry:    {len:2}{segment}
// Property entry: {len:2}{name}{multi:1}{count:2}({len:4}{value})...
func digest(n *Node) string {
	var body bytes.Buffer
	body.Write(n.id[:])

	binary.Write(&body, binary.BigEndian, uint32(len(n.children)))
	for _, child := range n.children {
		writeString16(&body, child.segment().String())
	}

	names := make([]graph.Name, 0, len(n.properties))
	for name := range n.properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i].String() < names[j].String()
	})
	for _, name := range names {
		p := n.properties[name]
		writeString16(&body, name.String())
		if p.IsMulti() {
			body.WriteByte(1)
		} else {
			body.WriteByte(0)
		}
		binary.Write(&body, binary.BigEndian, uint16(p.Size()))
		for _, v := range p.Values() {
			enc := fmt.Sprintf("%T:%v", v, v)
			binary.Write(&body, binary.BigEndian, uint32(len(enc)))
			body.WriteString(enc)
		}
	}

	header := fmt.Sprintf("node %d\x00", body.Len())
	h := sha256.New()
	h.Write([]byte(header))
	h.Write(body.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

func writeString16(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
}
