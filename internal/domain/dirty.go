package domain

// DirtyFlags marks the pending reconciliation work of an entity after a schema change
type DirtyFlags int

const (
	DirtyValidateLatest    DirtyFlags = 1 << iota // Re-validate the latest version
	DirtyValidatePublished                        // Re-validate the published version
	DirtyIndexLatest                              // Rebuild latest side indexes
	DirtyIndexPublished                           // Rebuild published side indexes

	DirtyAll = DirtyValidateLatest | DirtyValidatePublished | DirtyIndexLatest | DirtyIndexPublished
)

// Has returns true if every bit of f is set
func (d DirtyFlags) Has(f DirtyFlags) bool {
	return d&f == f
}

// Clear returns d without the bits of f
func (d DirtyFlags) Clear(f DirtyFlags) DirtyFlags {
	return d &^ f
}

// IsZero returns true when no work is pending
func (d DirtyFlags) IsZero() bool {
	return d&DirtyAll == 0
}
