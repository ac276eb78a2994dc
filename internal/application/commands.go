package application

import "github.com/bnema/partybot/internal/domain"

// CreatePartyCommand carries everything a party creation needs from the chat
// command that requested it.
type CreatePartyCommand struct {
	Group      domain.GroupID
	GroupAdmin domain.UserID
	Owner      domain.UserID
	OwnerName  string
	OwnerIcon  string
	Title      string
	Game       string
	Capacity   int
	Channel    domain.ChannelID
	Command    domain.MessageID
}

type StopPartyCommand struct {
	Group     domain.GroupID
	Requester domain.UserID
}

type DeletePartyCommand struct {
	Group domain.GroupID
	Owner domain.UserID
}

// DeleteGroupCommand removes a group and all of its parties. Progress, when
// set, is called once per party after its teardown with the teardown error.
type DeleteGroupCommand struct {
	Group    domain.GroupID
	Progress func(owner domain.UserID, err error)
}
