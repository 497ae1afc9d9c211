// Package goQrLogin is an embeddable Redis-backed QR code login engine.
//
// A web client calls Init to create a pending session and render the returned
// encrypted payload as a QR code, then repeatedly calls Poll with the rotating
// one-time nonce. An authenticated mobile device calls Scan to decode the
// payload and Approve to authorize the session, after which exactly one poll
// observes the confirmed status and receives the login ticket.
//
// All session state lives in Redis; every state transition runs as a Lua
// compare-and-swap so concurrent polls and approvals on the same session
// serialize cleanly. The engine issues JWT tickets through the ticket package
// by default and accepts custom TicketIssuer and RoleResolver collaborators.
package goQrLogin
