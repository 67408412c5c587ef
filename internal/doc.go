// Package internal holds credential primitives shared by the root engine and
// the session store: token ID parsing, refresh secret generation, and the
// opaque refresh credential encoding.
package internal
