package auth

// DemoIdentity returns the client-synthesized superuser used when the staff
// backend is unreachable. Its credential is always DemoCredential.
func DemoIdentity() Identity {
	return Identity{
		ID:          0,
		Login:       "admin",
		DisplayName: "Демо-администратор",
		Role:        NewRole(0, "Суперадминистратор", SuperAdminSlug, true, nil),
		IsActive:    true,
	}
}

// DemoSession returns a ready session bound to the demo identity.
func DemoSession() Session {
	id := DemoIdentity()
	return Session{Credential: DemoCredential, Identity: &id, Phase: PhaseReady}
}
