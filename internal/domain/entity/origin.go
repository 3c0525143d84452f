package entity

// Origin is the key identifying a security origin (scheme+host+port),
// pre-normalized by the embedder. Permission state is always keyed by this
// string value: origin objects in the engine may be destroyed and recreated
// between a request and its decision, so value equality on the serialized
// form is the only identity that holds.
type Origin string

// IsEmpty reports whether no origin is set. The negotiator uses the empty
// origin as the "no prompt in flight" marker.
func (o Origin) IsEmpty() bool {
	return o == ""
}

func (o Origin) String() string {
	return string(o)
}

// PermissionsMap associates origins with an allow/deny decision. It backs
// both the per-tab temporary decisions and the process-wide permanent store.
type PermissionsMap map[Origin]bool
