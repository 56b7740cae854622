// Package unix implements the transport of the profile store over Unix domain
// sockets, for clients running on the same machine as the server.
//
// The endpoint is the path of the socket file. An existing file at that path is
// removed before listening, the listener removes it again when it is closed.
//
// See the base package for the connection handling itself.
package unix
