// Package events defines the typed callbacks the sync core exposes to its
// collaborators. The composition root owns the Hooks value and wires each
// callback to a concrete call site, so consumers are statically known.
package events

// Hooks carries the callbacks the sync core invokes on state changes.
// Any field may be nil; use the Emit helpers to invoke them.
type Hooks struct {
	// DataChanged fires with no arguments whenever remote-origin data has
	// changed locally (incremental sync, share acceptance, remote-change
	// notification). Collaborators re-read from the local store.
	DataChanged func()

	// AccountUnavailable fires when remote availability transitions
	// true→false during a running session while local data exists.
	AccountUnavailable func()
}

func (h Hooks) EmitDataChanged() {
	if h.DataChanged != nil {
		h.DataChanged()
	}
}

func (h Hooks) EmitAccountUnavailable() {
	if h.AccountUnavailable != nil {
		h.AccountUnavailable()
	}
}
