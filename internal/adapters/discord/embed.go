package discord

import (
	"fmt"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bwmarrin/discordgo"
)

const (
	colorOpen = 0xA84300
	colorFull = 0x607D8B
)

func announcementEmbed(a domain.Announcement) *discordgo.MessageEmbed {
	color := colorOpen
	if a.Full {
		color = colorFull
	}

	embed := &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: a.Title, IconURL: a.AuthorIcon},
		Description: fmt.Sprintf("This is a party created for! -> %s", a.Game),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Players", Value: fmt.Sprintf("%d/%d", a.Occupancy, a.Capacity), Inline: true},
			{Name: "Members", Value: a.Members, Inline: true},
		},
	}
	if a.Full {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "This party is full"}
	}
	if a.AuthorIcon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: a.AuthorIcon}
	}
	return embed
}
