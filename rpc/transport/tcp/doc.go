// Package tcp implements the TCP transport of the profile store. It provides
// the TCP specific connectors for the base package: listening and dialing on
// host:port endpoints and applying the socket options of common.TCPConf
// (no delay, keep-alive, linger) and common.SocketConf (buffer sizes).
//
// See the base package for the connection handling itself.
package tcp
