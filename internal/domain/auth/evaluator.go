package auth

// Has reports whether id holds permission p. A nil identity holds nothing.
func Has(id *Identity, p Permission) bool {
	if id == nil {
		return false
	}
	switch g := id.Role.Grant.(type) {
	case SuperuserGrant:
		return true
	case BundleGrant:
		return g.Contains(p)
	default:
		return false
	}
}

// Granted lists the catalog permissions id holds, in catalog order.
func Granted(id *Identity) []Permission {
	out := make([]Permission, 0, len(catalog))
	for _, p := range catalog {
		if Has(id, p) {
			out = append(out, p)
		}
	}
	return out
}
