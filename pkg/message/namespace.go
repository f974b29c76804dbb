package message

import (
	"github.com/beevik/etree"
)

// canonicalize detaches the Document element into its own tree and binds the
// message namespace as default namespace.
//
// Transforms:
//
//	<env:BizMsg xmlns:env="..." xmlns:doc="urn:iso:std:iso:20022:tech:xsd:camt.053.001.08">
//	  <doc:Document>
//	    <doc:BkToCstmrStmt>...
//
// Into:
//
//	<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.08">
//	  <BkToCstmrStmt>...
//
// Elements of other namespaces keep their prefixes. Declarations they rely on
// that were made outside the Document element are copied onto it.
// Unqualified elements that fall under the new default namespace are
// undeclared with xmlns="" so they stay in no namespace.
func canonicalize(docEl *etree.Element, ns string) *etree.Document {
	// Resolve everything before the tree is changed
	var isoElems []*etree.Element
	type qualifiedAttr struct {
		el    *etree.Element
		space string
		key   string
	}
	var isoAttrs []qualifiedAttr
	var unqualified []*etree.Element
	used := make(map[string]bool)

	walk(docEl, func(el *etree.Element) {
		uri := el.NamespaceURI()
		if uri == ns {
			isoElems = append(isoElems, el)
		} else if el.Space == "" && uri == "" {
			unqualified = append(unqualified, el)
		} else if el.Space != "" {
			used[el.Space] = true
		}
		for _, a := range el.Attr {
			if a.Space == "" || a.Space == "xmlns" {
				continue
			}
			if a.NamespaceURI() == ns {
				isoAttrs = append(isoAttrs, qualifiedAttr{el: el, space: a.Space, key: a.Key})
			} else {
				used[a.Space] = true
			}
		}
	})

	inherited := inheritedPrefixes(docEl)

	doc := etree.NewDocument()
	doc.SetRoot(docEl)

	isISO := make(map[*etree.Element]bool, len(isoElems))
	for _, el := range isoElems {
		isISO[el] = true
	}

	walk(docEl, func(el *etree.Element) {
		kept := el.Attr[:0]
		for _, a := range el.Attr {
			if a.Value == ns && (a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")) {
				continue
			}
			kept = append(kept, a)
		}
		el.Attr = kept
	})

	for _, qa := range isoAttrs {
		for i := range qa.el.Attr {
			if qa.el.Attr[i].Space == qa.space && qa.el.Attr[i].Key == qa.key {
				qa.el.Attr[i].Space = ""
			}
		}
	}

	for _, el := range isoElems {
		el.Space = ""
		if el != docEl && !isISO[el.Parent()] {
			el.CreateAttr("xmlns", ns)
		}
	}

	isUnqualified := make(map[*etree.Element]bool, len(unqualified))
	for _, el := range unqualified {
		isUnqualified[el] = true
	}
	for _, el := range unqualified {
		if isUnqualified[el.Parent()] || hasDefaultDeclaration(el) {
			continue
		}
		el.CreateAttr("xmlns", "")
		moveLastAttrFirst(el)
	}

	for _, prefix := range inherited.order {
		if !used[prefix] || hasDeclaration(docEl, prefix) {
			continue
		}
		docEl.CreateAttr("xmlns:"+prefix, inherited.uris[prefix])
	}

	docEl.CreateAttr("xmlns", ns)
	moveLastAttrFirst(docEl)
	return doc
}

type prefixes struct {
	order []string
	uris  map[string]string
}

// inheritedPrefixes collects the prefix declarations in scope above el,
// nearest declaration first
func inheritedPrefixes(el *etree.Element) prefixes {
	p := prefixes{uris: make(map[string]string)}
	for anc := el.Parent(); anc != nil; anc = anc.Parent() {
		for _, a := range anc.Attr {
			if a.Space != "xmlns" {
				continue
			}
			if _, seen := p.uris[a.Key]; seen {
				continue
			}
			p.uris[a.Key] = a.Value
			p.order = append(p.order, a.Key)
		}
	}
	return p
}

func hasDeclaration(el *etree.Element, prefix string) bool {
	for _, a := range el.Attr {
		if a.Space == "xmlns" && a.Key == prefix {
			return true
		}
	}
	return false
}

func hasDefaultDeclaration(el *etree.Element) bool {
	for _, a := range el.Attr {
		if a.Space == "" && a.Key == "xmlns" {
			return true
		}
	}
	return false
}

func moveLastAttrFirst(el *etree.Element) {
	n := len(el.Attr)
	if n < 2 {
		return
	}
	last := el.Attr[n-1]
	copy(el.Attr[1:], el.Attr[:n-1])
	el.Attr[0] = last
}

// walk visits el and its descendant elements in document order
func walk(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, c := range el.ChildElements() {
		walk(c, fn)
	}
}
