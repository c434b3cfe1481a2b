// Package gossip spreads graph state and membership across a cluster without
// a coordinator. A node wraps its full graph snapshot in an Envelope tagged
// with a fresh round UUID and sends it to every address it knows. Receivers
// merge the snapshot, remember the UUID, and relay the envelope onward to
// their own peers, skipping whoever sent it and whoever started the round.
//
// Membership spreads the same way: a node that learns a new address relays a
// register announcement to its other peers.
//
// Typical usage:
//
//	c := gossip.New(gossip.Config{Self: "http://10.0.0.1:8000"}, gossip.NewHTTPTransport(2*time.Second), logger)
//	env := c.NewRound(g.Snapshot())
//	report := c.Fanout(ctx, env, table.List())
//
// Tests swap the HTTP transport for an in-process one.
package gossip
