package domain

// ActorKind distinguishes requester and staff identities.
type ActorKind string

const (
	ActorKindRequester ActorKind = "requester"
	ActorKindStaff     ActorKind = "staff"
)

// Actor identifies who triggered a lifecycle transition. The controller does
// not authorize actors; it records them in every audit event.
type Actor struct {
	Kind        ActorKind
	ID          string
	DisplayName string
}
