// Package credentials stores chat accounts as salted, iterated password
// digests and answers the existence, authentication and creation queries made
// during the login handshake.
//
// Records live in a Repository (PostgreSQL or in-memory). The Store hashes
// passwords with a Hasher before they reach the repository and never keeps
// plaintext.
package credentials
