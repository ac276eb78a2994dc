package cmd

import (
	"errors"
	"testing"

	"github.com/bnema/partybot/internal/domain"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeardownProgressCountsParties(t *testing.T) {
	var m tea.Model = newTeardownProgressModel("group guild-1", 3, nil)
	assert.Contains(t, m.View(), "Tearing down group guild-1: 0/3 parties")

	m, cmd := m.Update(partyTornDownMsg{owner: "owner-1"})
	assert.Nil(t, cmd)
	m, _ = m.Update(partyTornDownMsg{owner: "owner-2", err: errors.New("missing permissions")})

	view := m.View()
	assert.Contains(t, view, "2/3 parties")
	assert.Contains(t, view, "(last: owner-2)")
	assert.Contains(t, view, "1 failed")
	assert.Equal(t, []domain.UserID{"owner-2"}, m.(teardownProgressModel).failed)
}

func TestTeardownProgressQuitsWithTaskError(t *testing.T) {
	boom := errors.New("store unavailable")
	var m tea.Model = newTeardownProgressModel("party of owner-1", 1, nil)
	assert.Contains(t, m.View(), "0/1 party")

	m, cmd := m.Update(teardownFinishedMsg{err: boom})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
	assert.ErrorIs(t, m.(teardownProgressModel).err, boom)
}
