package identity

import "context"

// StaticResolver grants a fixed identity and role to every call. It exists
// for local development without a session backend and is selected at startup
// only when auth bypass is enabled outside production; config validation
// rejects the combination of bypass and a production environment.
type StaticResolver struct {
	UserID   string
	Email    string
	Role     Role
	ClinicID string
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver builds the dev-only resolver.
func NewStaticResolver(userID, email string, role Role, clinicID string) *StaticResolver {
	if userID == "" {
		userID = "dev-user-1"
	}
	if email == "" {
		email = "dev@local"
	}
	return &StaticResolver{UserID: userID, Email: email, Role: role, ClinicID: clinicID}
}

// ResolveActor implements Resolver.
func (r *StaticResolver) ResolveActor(ctx context.Context, token string) (Actor, error) {
	return Actor{ID: r.UserID, Email: r.Email, Role: r.Role, ClinicID: r.ClinicID}, nil
}
