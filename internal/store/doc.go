// Package store persists OAuth session state behind a minimal key/value
// Backend interface.
//
// The Backend contract is get/set/remove/clear-all with synchronous
// write-through semantics. Two implementations ship with the package:
// MemoryBackend (mutex-guarded map, the default) and FileBackend (single
// JSON file with 0600 permissions, plus an fsnotify-based Watch for
// detecting sign-ins made by other processes). Hosts with platform secure
// storage (keychain, keyring) supply their own Backend.
//
// ClientStore sits on top and maps typed token and profile fields onto
// namespaced keys:
//
//	<namespace>___<clientID>__<field>
//
// for the fields idToken, accessToken, refreshToken, scope, expiresAt, id,
// name, email, and picture. Several client configurations can therefore
// share one backend. Clear removes a client's session but keeps the user id
// as a login hint; ClearAll wipes the whole backend.
package store
