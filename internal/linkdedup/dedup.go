// Package linkdedup prunes crawled link lists down to their most specific entries.
package linkdedup

// node is a byte-level trie node. terminal is set when some input link ends here.
type node struct {
	children map[byte]*node
	terminal bool
}

func (n *node) child(b byte) *node {
	if n.children == nil {
		n.children = make(map[byte]*node)
	}
	c, ok := n.children[b]
	if !ok {
		c = &node{}
		n.children[b] = c
	}
	return c
}

// DropPrefixes returns the links that are not a strict prefix of another link,
// in their original order.
//
// The prefix relation is literal: "https://x/store" is dropped when
// "https://x/store-12" is present, even though the split is not on a path
// boundary. Overview pages on the crawled sites are exact textual prefixes
// of the detail pages below them, which is what this relies on. Links equal
// to another link are kept; only strictly shorter matches count.
func DropPrefixes(links []string) []string {
	if len(links) == 0 {
		return []string{}
	}

	root := &node{}
	for _, link := range links {
		n := root
		for i := 0; i < len(link); i++ {
			n = n.child(link[i])
		}
		n.terminal = true
	}

	// Walk each link again; every terminal node passed on the way (excluding
	// the link's own end) is a strict prefix present in the input.
	drop := make(map[string]struct{})
	for _, link := range links {
		n := root
		for i := 0; i < len(link)-1; i++ {
			n = n.children[link[i]]
			if n.terminal {
				drop[link[:i+1]] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(links))
	for _, link := range links {
		if _, ok := drop[link]; ok {
			continue
		}
		out = append(out, link)
	}
	return out
}
