package gqlrequest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// snapshotKeyLen is the number of hex digits kept in a snapshot key.
const snapshotKeyLen = 16

// fingerprintOperation prints op and the fragments it spreads as one
// normalized document, and hashes that document under the operation's name.
// Fragments are printed by name so the document order of the request does
// not change the hash.
func fingerprintOperation(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (canonical, hash string, err error) {
	if op == nil {
		return "", "", fmt.Errorf("operation is nil")
	}

	spread, err := spreadFragments(op.SelectionSet, fragments)
	if err != nil {
		return "", "", err
	}

	var doc strings.Builder
	doc.WriteString(printNode(op))
	for _, fragment := range spread {
		doc.WriteString("\n\n")
		doc.WriteString(printNode(fragment))
	}
	canonical = doc.String()
	return canonical, digest(operationNameOf(op), canonical), nil
}

// spreadFragments returns every fragment reachable from root, sorted by
// name. A spread of an undefined fragment is an error.
func spreadFragments(root *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition) ([]*ast.FragmentDefinition, error) {
	seen := map[string]*ast.FragmentDefinition{}
	pending := []*ast.SelectionSet{root}
	for len(pending) > 0 {
		set := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if set == nil {
			continue
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				pending = append(pending, sel.SelectionSet)
			case *ast.InlineFragment:
				pending = append(pending, sel.SelectionSet)
			case *ast.FragmentSpread:
				if sel.Name == nil || sel.Name.Value == "" {
					continue
				}
				name := sel.Name.Value
				if _, done := seen[name]; done {
					continue
				}
				fragment, ok := fragments[name]
				if !ok || fragment == nil {
					return nil, fmt.Errorf("fragment %q not found", name)
				}
				seen[name] = fragment
				pending = append(pending, fragment.SelectionSet)
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*ast.FragmentDefinition, len(names))
	for i, name := range names {
		out[i] = seen[name]
	}
	return out, nil
}

func printNode(node ast.Node) string {
	printed, _ := printer.Print(node).(string)
	return printed
}

func operationNameOf(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// digest hashes parts with a length prefix on each, so ("ab", "c") and
// ("a", "bc") differ.
func digest(parts ...string) string {
	h := sha256.New()
	var prefix []byte
	for _, part := range parts {
		prefix = binary.AppendUvarint(prefix[:0], uint64(len(part)))
		h.Write(prefix)
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotKey identifies one operation run against one version of the
// served data. Two requests share a key only when both the operation and
// the data fingerprint match, so a cached response keyed on it is safe to
// reuse until the data changes. It is empty when either input is.
func SnapshotKey(operationHash, dataFingerprint string) string {
	if operationHash == "" || dataFingerprint == "" {
		return ""
	}
	return digest(operationHash, dataFingerprint)[:snapshotKeyLen]
}
