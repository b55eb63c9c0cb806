package views

import (
	"fmt"
	"time"

	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/shared/gov"
)

// Announcement renders the broadcast embed. Reposts carry a footer marker.
func Announcement(a gov.AnnouncementDTO, loc *time.Location, repost bool) gateway.MessagePayload {
	if loc == nil {
		loc = time.UTC
	}
	footer := "Announcement"
	if repost {
		footer = "Announcement · repost"
	}
	return gateway.MessagePayload{Embeds: []gateway.Embed{{
		Title:       a.Title,
		Description: field(a.Content),
		Color:       ColorAnnouncement,
		Fields: []gateway.EmbedField{
			{Name: "Ends", Value: fmt.Sprintf("%s (%s %s)", relative(a.EndTime), a.EndTime.In(loc).Format("2006-01-02 15:04"), loc.String()), Inline: true},
			{Name: "Discussion", Value: channelLink(a.ThreadID), Inline: true},
		},
		Footer: footer,
	}}}
}

// AnnouncementEnded is posted in the thread when the announcement finishes.
func AnnouncementEnded(a gov.AnnouncementDTO) gateway.MessagePayload {
	desc := "The announcement period is over."
	if a.AutoExecute {
		desc += " The proposal moves into execution."
	}
	return gateway.MessagePayload{Embeds: []gateway.Embed{{
		Title:       "Announcement ended: " + a.Title,
		Description: desc,
		Color:       ColorNeutral,
	}}}
}

// AnnounceModal is the form behind the announce command.
func AnnounceModal(autoExecute, repost bool, threshold, interval int) gateway.Modal {
	return gateway.Modal{
		CustomID: AnnounceModalID(autoExecute, repost, threshold, interval),
		Title:    "New announcement",
		Inputs: []gateway.TextInput{
			{CustomID: "title", Label: "Title", Required: true, MaxLength: gov.MaxTitleLength},
			{CustomID: "content", Label: "Content", Paragraph: true, Required: true, MaxLength: gov.MaxContentLength},
			{CustomID: "end", Label: "Ends (hours, or YYYY-MM-DD HH:MM)", Placeholder: "72", Required: true, MaxLength: 16},
		},
	}
}
