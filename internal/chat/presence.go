package chat

// PresencePayload is the online_users event payload.
type PresencePayload struct {
	Users []string `json:"users"`
}

// Snapshot returns the current set of online usernames. It is a pure view
// of Registry state; emitting it after connect and disconnect is the
// Gateway's job. Join and leave do not change presence.
func Snapshot(reg *Registry) PresencePayload {
	return PresencePayload{Users: reg.Usernames()}
}
