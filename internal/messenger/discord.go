package messenger

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSink posts notifications to a single Discord channel.
type DiscordSink struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordSink(token, channelID string) (*DiscordSink, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: missing bot token")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord: missing channel id")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	return &DiscordSink{session: session, channelID: channelID}, nil
}

func (d *DiscordSink) Name() string {
	return "discord"
}

func (d *DiscordSink) Send(n Notification) error {
	_, err := d.session.ChannelMessageSend(d.channelID, render(n))
	return err
}

func (d *DiscordSink) Close() error {
	return d.session.Close()
}
