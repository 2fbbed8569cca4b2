package sync

import "context"

// Op names a local mutation for authorization.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Authorizer rejects a mutation before it touches the local store. current
// is the stored payload (nil on create); next is the new payload (nil on
// delete). A rejection should be a *ValidationError.
type Authorizer func(ctx context.Context, op Op, current, next any) error

type actorKey struct{}

// WithActor returns a context carrying the ID of the user performing
// mutations.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor stored by [WithActor], or "".
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

// RequireOwner is an [Authorizer] for payloads implementing [Owned]. Only
// the owner may edit or delete a record, a new record must be owned by the
// actor creating it, and ownership cannot change through an edit. Payloads
// that are not Owned pass unchecked.
func RequireOwner(ctx context.Context, op Op, current, next any) error {
	actor := ActorFrom(ctx)

	if cur, ok := current.(Owned); ok {
		if actor == "" || cur.OwnerID() != actor {
			return &ValidationError{Field: "owner", Message: "only the owner may " + string(op) + " this record"}
		}
		if nxt, ok := next.(Owned); ok && nxt.OwnerID() != cur.OwnerID() {
			return &ValidationError{Field: "owner", Message: "ownership cannot be changed"}
		}
		return nil
	}

	if op == OpCreate {
		if nxt, ok := next.(Owned); ok && (actor == "" || nxt.OwnerID() != actor) {
			return &ValidationError{Field: "owner", Message: "records can only be created for the acting user"}
		}
	}
	return nil
}
