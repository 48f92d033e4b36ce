package identity

// Record is one enrollment as stored by a single verifier node. The store key
// (email) is held by the enclosing map, not the record. Exactly one template
// representation is active per node: Signature on signature-matching nodes,
// Slug (a reference into the node's encoding cache) on embedding nodes.
type Record struct {
	Name        string  `json:"name"`
	Signature   string  `json:"signature,omitempty"`
	Slug        string  `json:"slug,omitempty"`
	SampleCount int     `json:"sample_count,omitempty"`
	Profile     Profile `json:"profile"`
}
