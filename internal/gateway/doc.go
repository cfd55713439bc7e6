// Package gateway wires the support-gateway components together and serves them.
//
// # Overview
//
// The Gateway owns the store, the agent registry, the router, the graph
// executor and the conversation service, and exposes them over HTTP. An
// optional gRPC listener serves the standard health service.
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil { ... }
//	err = gw.Run(ctx) // blocks until ctx is cancelled
//
// # HTTP API
//
//	GET  /                                  liveness banner with the server time
//	GET  /health                            200 while the process is up
//	GET  /health/ready                      200 when the store answers a ping
//	POST /api/chat                          run one cycle for a message
//	GET  /api/agents                        registered agents and descriptions
//	GET  /api/conversations/{id}            stored history (?format=html renders markdown)
//	DELETE /api/conversations/{id}          clear history and cycle log
//	GET  /api/conversations/{id}/cycles     recent cycle outcomes (?limit=N)
//	GET  /api/conversations/{id}/events     SSE stream of newly saved messages
//
// POST /api/chat takes:
//
//	{"conversation_id": "optional", "message": "I was double charged", "request_id": "optional"}
//
// and answers:
//
//	{"conversation_id": "...", "reply": "...", "agent_name": "billing_agent",
//	 "status": "ok", "limit_exceeded": false, "turns": 1, "time_taken_ms": 812}
//
// status is "routing_limit_exceeded" when the turn ceiling forced the answer.
//
// # Errors
//
// Failures are JSON {"error", "retryable", "conversation_id"}:
//
//	400  malformed body or empty message
//	401  missing or invalid bearer token (when auth.jwt_secret is set)
//	404  unknown conversation
//	409  request_id already seen for this conversation
//	503  model or agent failure; history is kept and the client may retry
//	504  cycle cancelled or timed out; nothing was saved
//	500  invalid conversation state
//
// # Listeners
//
// With tailscale.enabled the gateway joins the tailnet through tsnet and
// serves HTTP on :80 (and gRPC health on :50051 when server.grpc_addr is set).
// Otherwise it listens on server.http_addr and server.grpc_addr.
package gateway
