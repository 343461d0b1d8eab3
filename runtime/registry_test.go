package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dsgolman/supportai-bot-sub000/mocks"
)

func Test_Registry_Keeps_At_Most_One_Live_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewConnRegistry()

	alive := mocks.NewMockFacilitatorConn(ctrl)
	alive.EXPECT().Alive().Return(true).AnyTimes()
	challenger := mocks.NewMockFacilitatorConn(ctrl)

	// Given a live connection holding the slot
	req.True(registry.Put("g1", alive))

	// When a second connection tries to install
	installed := registry.Put("g1", challenger)

	// Then the live one keeps the slot
	req.False(installed)
	held, ok := registry.Get("g1")
	req.True(ok)
	req.Same(alive, held)
}

func Test_Registry_Replaces_And_Closes_Stale_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewConnRegistry()

	stale := mocks.NewMockFacilitatorConn(ctrl)
	stale.EXPECT().Alive().Return(false)
	stale.EXPECT().Close().Return(nil)
	fresh := mocks.NewMockFacilitatorConn(ctrl)

	req.True(registry.Put("g1", stale))
	req.True(registry.Put("g1", fresh))

	held, ok := registry.Get("g1")
	req.True(ok)
	req.Same(fresh, held)
}

func Test_Registry_Remove_Ignores_Superseded_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewConnRegistry()

	current := mocks.NewMockFacilitatorConn(ctrl)
	obsolete := mocks.NewMockFacilitatorConn(ctrl)

	req.True(registry.Put("g1", current))

	// A teardown of an older connection must not evict the successor
	req.False(registry.Remove("g1", obsolete))
	_, ok := registry.Get("g1")
	req.True(ok)

	req.True(registry.Remove("g1", current))
	_, ok = registry.Get("g1")
	req.False(ok)
}

func Test_Registry_CloseAll_Drains_Every_Group(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewConnRegistry()

	first := mocks.NewMockFacilitatorConn(ctrl)
	first.EXPECT().Close().Return(nil)
	second := mocks.NewMockFacilitatorConn(ctrl)
	second.EXPECT().Close().Return(nil)

	registry.Put("g1", first)
	registry.Put("g2", second)

	registry.CloseAll()

	_, ok := registry.Get("g1")
	req.False(ok)
	_, ok = registry.Get("g2")
	req.False(ok)
}
