// Package accounts bridges an external identity provider with the local
// account store: a guided sign-up flow, reconciliation of verified
// identities into local users, and the read model of a user's domains.
//
// Registration:
//   - RegistrationFlow walks AccountType, AccountDetails, EmailVerification
//     and Complete through an explicit transition table. Validation runs on
//     every forward move and provider errors keep the flow at its step with
//     the draft intact. FlowStore keeps flows in memory and expires idle ones.
//   - IdentityBridge is the four operation contract with the provider. The
//     provider/kratos and provider/memory packages implement it.
//
// Reconciliation:
//   - ReconcileUserHandler creates the local user of a verified identity
//     exactly once. The users unique constraint settles concurrent attempts,
//     the loser gets ErrUserAlreadyExists with the winning record.
//
// Read model:
//   - GraphService loads the active domains of a user with their chatbots,
//     customers, chat rooms and the newest messages of each room.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the flow, the
//     reconciler and the account service. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     registration.
package accounts
