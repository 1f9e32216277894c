package schema

type genericAdapter struct {
	*table
}

// Generic builds the adapter for trackers that expose no structured change log (Trac and
// its WordPress flavour). It declares the shared attributes but no labels, so every issue
// is reconstructed as a single snapshot equal to its current state.
func Generic(kind Kind) Adapter {
	return &genericAdapter{table: newTable(kind, "issues_log_generic", "", baseAttributes(nil))}
}
