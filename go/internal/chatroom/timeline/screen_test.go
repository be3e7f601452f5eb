package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenFor_CoversEveryPhase(t *testing.T) {
	seen := make(map[Screen]Phase)
	for _, p := range AllPhases() {
		s := ScreenFor(p)
		assert.NotEqual(t, ScreenUnknown, s, "phase %s has no screen", p)
		if other, dup := seen[s]; dup {
			t.Errorf("phases %s and %s share screen %s", other, p, s)
		}
		seen[s] = p
	}
	assert.Equal(t, ScreenUnknown, ScreenFor(Phase("LOBBY")))
}

func TestScreenFor_Mapping(t *testing.T) {
	assert.Equal(t, ScreenSecretMessageComposer, ScreenFor(PhaseSecretMessage))
	assert.Equal(t, ScreenCupidSelectionModal, ScreenFor(PhaseCupidMain))
	assert.Equal(t, ScreenRoomClosed, ScreenFor(PhaseClosed))
}

func TestPhaseNext(t *testing.T) {
	assert.Equal(t, PhaseSecretMessage, PhasePreSecret.Next())
	assert.Equal(t, PhaseClosed, PhasePostCupid.Next())
	assert.Equal(t, PhaseClosed, PhaseClosed.Next())
	assert.Equal(t, PhaseClosed, Phase("bogus").Next())
	assert.True(t, PhaseCupidInterim.Before(PhaseCupidMain))
	assert.False(t, PhaseClosed.Before(PhasePreSecret))
	assert.False(t, Phase("bogus").Valid())
}

func TestFormatCountdown(t *testing.T) {
	tests := map[int64]string{
		0:      "00:00:00",
		-12:    "00:00:00",
		59:     "00:00:59",
		320:    "00:05:20",
		1800:   "00:30:00",
		3661:   "01:01:01",
		360000: "100:00:00",
	}
	for sec, want := range tests {
		assert.Equal(t, want, FormatCountdown(sec), "seconds=%d", sec)
	}
}
