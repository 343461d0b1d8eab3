package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Censor_Masks_Forbidden_Words(t *testing.T) {
	req := require.New(t)
	moderator, err := NewFromWords([]string{"stupid", "idiot"}, '*')
	req.NoError(err)

	req.Equal("you are ******", moderator.Censor("you are stupid"))
	req.Equal("***** and ******", moderator.Censor("idiot and stupid"))
}

func Test_Censor_Is_Case_Insensitive_But_Preserves_Surroundings(t *testing.T) {
	req := require.New(t)
	moderator, err := NewFromWords([]string{"stupid"}, '*')
	req.NoError(err)

	req.Equal("You Are ******!", moderator.Censor("You Are StUpId!"))
}

func Test_Censor_Leaves_Clean_Text_Untouched(t *testing.T) {
	req := require.New(t)
	moderator, err := NewFromWords([]string{"stupid"}, '*')
	req.NoError(err)

	in := "thank you all for sharing today"
	req.Equal(in, moderator.Censor(in))
	req.Equal("", moderator.Censor(""))
}

func Test_Embedded_Word_Lists_Load(t *testing.T) {
	req := require.New(t)
	moderator, err := New('#')
	req.NoError(err)
	req.NotNil(moderator)
}

func Test_Empty_Word_List_Is_Rejected(t *testing.T) {
	req := require.New(t)
	_, err := NewFromWords([]string{"", "  "}, '*')
	req.Error(err)
}
