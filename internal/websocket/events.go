package websocket

type AccessEvent struct {
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType,omitempty"`
	Direction  string `json:"direction"`
	Result     string `json:"result"`
	FailReason string `json:"failReason,omitempty"`
	UserID     uint   `json:"userId,omitempty"`
	UserName   string `json:"userName,omitempty"`
	Timestamp  string `json:"timestamp"`
}

type PasscodeEvent struct {
	Action     string `json:"action"`
	PasscodeID uint   `json:"passcodeId"`
	UserID     uint   `json:"userId,omitempty"`
	Status     string `json:"status"`
}

// BroadcastAccessEvent pushes a pass attempt to every admin panel and,
// when the attempt resolved to a user, to that user's own session.
func (h *Hub) BroadcastAccessEvent(event AccessEvent) {
	h.BroadcastToAdmins("access_event", event)

	if event.UserID > 0 {
		h.BroadcastToUser(event.UserID, "access_event", event)
	}
}

func (h *Hub) BroadcastPasscodeEvent(event PasscodeEvent) {
	h.BroadcastToAdmins("passcode_event", event)

	if event.UserID > 0 {
		h.BroadcastToUser(event.UserID, "passcode_event", event)
	}
}
