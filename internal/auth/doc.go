// Package auth is the identity collaborator of the facility service.
//
// It owns user accounts (email unique and stored lowercase), Argon2id
// password hashes and HS256 access tokens. The token subject is the user
// id; the API middleware turns verified claims into a hierarchy.Principal.
// The hierarchy itself never checks credentials.
package auth
