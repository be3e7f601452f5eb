package timeline

// Screen identifies the social-game screen or modal a client shows during a phase.
type Screen string

const (
	ScreenUnknown               Screen = ""
	ScreenWaitingRoom           Screen = "waiting_room"
	ScreenSecretMessageComposer Screen = "secret_message_composer"
	ScreenCupidInterimNotice    Screen = "cupid_interim_notice"
	ScreenCupidSelectionModal   Screen = "cupid_selection_modal"
	ScreenMatchReveal           Screen = "match_reveal"
	ScreenRoomClosed            Screen = "room_closed"
)

// ScreenFor maps every phase to the screen shown while it is active.
func ScreenFor(p Phase) Screen {
	switch p {
	case PhasePreSecret:
		return ScreenWaitingRoom
	case PhaseSecretMessage:
		return ScreenSecretMessageComposer
	case PhaseCupidInterim:
		return ScreenCupidInterimNotice
	case PhaseCupidMain:
		return ScreenCupidSelectionModal
	case PhasePostCupid:
		return ScreenMatchReveal
	case PhaseClosed:
		return ScreenRoomClosed
	}
	return ScreenUnknown
}
