package copytrade

// SymbolGate is the allow-list precondition consulted before any follower
// processing starts. A symbol missing from the set, or present but inactive,
// blocks the whole copy event.
type SymbolGate map[string]bool

func (g SymbolGate) Allowed(symbol string) bool {
	return g[symbol]
}
