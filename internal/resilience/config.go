package resilience

// ClassifyError labels an error "transient" or "permanent" for the failure
// ledger.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
