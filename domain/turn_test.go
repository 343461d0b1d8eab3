package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_RaiseHand_Then_LowerHand_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	// Given an empty turn state
	state := EmptyTurnState("g1")

	// When a hand goes up and straight back down
	req.True(state.RaiseHand("u1", time.Now().UTC()))
	req.True(state.LowerHand("u1"))

	// Then the queue is untouched
	req.Empty(state.Queue)
	req.Equal(TurnIdle, state.Phase())
}

func Test_RaiseHand_Twice_Keeps_One_Entry(t *testing.T) {
	req := require.New(t)
	state := EmptyTurnState("g1")
	at := time.Now().UTC()

	req.True(state.RaiseHand("u1", at))
	req.False(state.RaiseHand("u1", at.Add(time.Second)))

	req.Len(state.Queue, 1)
	req.Equal(at, state.Queue[0].RaisedAt)
}

func Test_GrantNext_Selects_Earliest_Raised_Hand(t *testing.T) {
	req := require.New(t)
	state := EmptyTurnState("g1")
	at := time.Now().UTC()

	// Given u2 raised before u1
	req.True(state.RaiseHand("u1", at.Add(time.Minute)))
	req.True(state.RaiseHand("u2", at))

	// When the floor is granted
	req.True(state.GrantNext(time.Now().UTC()))

	// Then the earliest hand speaks first
	req.Equal("u2", state.CurrentSpeaker)
	req.Len(state.Queue, 1)
	req.Equal("u1", state.Queue[0].UserID)
}

func Test_Current_Speaker_Cannot_Queue(t *testing.T) {
	req := require.New(t)
	state := EmptyTurnState("g1")
	now := time.Now().UTC()

	req.True(state.RaiseHand("u1", now))
	req.True(state.GrantNext(now))
	req.Equal("u1", state.CurrentSpeaker)

	// The speaker raising their own hand never re-enters the queue
	req.False(state.RaiseHand("u1", now.Add(time.Second)))
	req.Empty(state.Queue)
}

func Test_Full_Turn_Rotation(t *testing.T) {
	req := require.New(t)
	// Given an empty state with two raised hands
	state := EmptyTurnState("G1")
	now := time.Now().UTC()
	req.True(state.RaiseHand("u1", now))
	req.True(state.RaiseHand("u2", now.Add(time.Second)))

	// When the floor is granted
	req.True(state.GrantNext(now))

	// Then u1 speaks and u2 waits
	req.Equal("u1", state.CurrentSpeaker)
	req.Len(state.Queue, 1)
	req.Equal("u2", state.Queue[0].UserID)

	// When u1 ends their turn
	req.True(state.EndTurn("u1", now.Add(time.Minute)))

	// Then u2 takes the floor with an empty queue
	req.Equal("u2", state.CurrentSpeaker)
	req.Empty(state.Queue)
}

func Test_EndTurn_By_Non_Speaker_Is_Rejected(t *testing.T) {
	req := require.New(t)
	state := EmptyTurnState("g1")
	now := time.Now().UTC()
	state.RaiseHand("u1", now)
	state.GrantNext(now)

	req.False(state.EndTurn("u2", now))
	req.Equal("u1", state.CurrentSpeaker)
}

func Test_GrantNext_On_Empty_Queue_Clears_Floor(t *testing.T) {
	req := require.New(t)
	state := EmptyTurnState("g1")
	now := time.Now().UTC()
	state.RaiseHand("u1", now)
	state.GrantNext(now)

	// When the speaker leaves with nobody waiting
	req.True(state.EndTurn("u1", now))
	granted := state.GrantNext(now.Add(time.Minute))

	// Then the group goes idle
	req.False(granted)
	req.Empty(state.CurrentSpeaker)
	req.Equal(TurnIdle, state.Phase())
}
