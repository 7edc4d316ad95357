package capability

import "strings"

// Tool names follow a single wire convention: target-scoped tools are the
// capability's namespace prefix followed by the target id
// (create_ticket__<type-id>), while discovery tools carry fixed names outside
// the namespace. Encoding and decoding live here so the convention is
// enforced at one seam.

// EncodeToolName builds a target-scoped tool name.
func EncodeToolName(namespace, targetID string) string {
	return namespace + targetID
}

// DecodeToolName extracts the target id from a namespaced tool name.
// It returns false when the name is outside the namespace or carries an
// empty target id.
func DecodeToolName(namespace, name string) (string, bool) {
	if namespace == "" || !strings.HasPrefix(name, namespace) {
		return "", false
	}
	targetID := name[len(namespace):]
	if targetID == "" {
		return "", false
	}
	return targetID, true
}
