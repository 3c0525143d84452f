package entity

// PermissionDecision represents the stored form of a geolocation decision.
type PermissionDecision string

const (
	// PermissionGranted means geolocation access was allowed.
	PermissionGranted PermissionDecision = "granted"

	// PermissionDenied means geolocation access was denied.
	PermissionDenied PermissionDecision = "denied"
)

// DecisionFromAllow converts the negotiator's boolean outcome to the stored form.
func DecisionFromAllow(allow bool) PermissionDecision {
	if allow {
		return PermissionGranted
	}
	return PermissionDenied
}

// PermissionRecord stores a remembered geolocation decision for an origin.
type PermissionRecord struct {
	Origin    Origin             // The origin this permission applies to
	Decision  PermissionDecision // The decision: granted or denied
	UpdatedAt int64              // Unix timestamp in seconds when this record was last updated
}

// IsGranted returns true if the permission is granted.
func (p *PermissionRecord) IsGranted() bool {
	return p.Decision == PermissionGranted
}
