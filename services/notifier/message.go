package notifier

import (
	"fmt"
	"time"

	"lonetwatch/lib/discord"
	"lonetwatch/lib/scrapers/lonet"
	"lonetwatch/lib/textutil"
	"lonetwatch/lib/timezone"
)

const (
	// Discord's embed description limit
	descriptionLimit = 2048
	truncationMarker = "... (message limit reached)"
	timeLayout       = "02.01.2006 15:04"

	noDeadlinePlaceholder = "—"
	unknownCreationText   = "unknown"
)

func buildTaskEmbed(subject string, task lonet.Task, creation time.Time) discord.Embed {
	deadlineText := noDeadlinePlaceholder
	if !task.Deadline.IsZero() {
		deadlineText = task.Deadline.In(timezone.Location).Format(timeLayout)
	}

	creationText := unknownCreationText
	if !creation.IsZero() {
		creationText = creation.In(timezone.Location).Format(timeLayout)
	}

	return discord.Embed{
		Title:       fmt.Sprintf("%s: %s", subject, task.Name),
		URL:         task.Link,
		Description: textutil.TruncateRunes(task.Description, descriptionLimit, truncationMarker),
		Fields: []discord.EmbedField{
			{Name: "Due", Value: fmt.Sprintf("**%s**", deadlineText)},
		},
		Footer: &discord.EmbedFooter{Text: "Added on " + creationText},
	}
}
