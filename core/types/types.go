package types

// Event is the structured record emitted by ledger operations for downstream
// observers (RPC subscribers, indexers). Attributes are stringly typed so the
// payload survives any transport without schema coordination.
type Event struct {
	Type       string
	Attributes map[string]string
}
