// Package http provides the gateway API that the chat bot front-end calls.
//
// Every route except /healthz and /metrics requires an `Authorization: Bearer`
// token matching the configured argon2id hash. The router exposes:
//   - GET /appointments, POST /appointments: list live appointments or announce
//     a new one. Body: {"activity","capacity","time","channel","gathering_point",
//     "creator_id"}; `time` accepts "HH:MM" or "in N minutes".
//   - GET /appointments/{id}: one live appointment.
//   - POST /appointments/{id}/join, /leave, /cancel: roster changes and calling
//     off. Body: {"user_id"}.
//   - GET /harassments, POST /harassments: list active and recently ended
//     sessions or start one. Body: {"target_id","gathering_point","channel",
//     "waiting_user_ids","interval_minutes"}.
//   - POST /harassments/{target}/give-up: ends a session on behalf of a waiting
//     user. Body: {"user_id"}.
//   - POST /presence/arrivals, POST /presence/departures: occupancy updates.
//     Body: {"gathering_point","user_id"}. Arrivals are dispatched to both
//     services immediately.
//   - GET /leaderboard?limit=N: per-user wasted and waiting minute totals.
//
// Error bodies carry a Japanese `message`, an optional `error_code` and, for
// 422 responses, localized per-field `errors`. DTOs live alongside their
// handlers.
package http
