package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rcliao/agent-convo/internal/model"
	"github.com/rcliao/agent-convo/internal/reply"
)

const previewLen = 60

func writeSummary(w io.Writer, c model.Conversation) {
	preview := ""
	if last, ok := c.LastMessage(); ok {
		preview = reply.Truncate(strings.ReplaceAll(last.Content, "\n", " "), previewLen)
	}
	fmt.Fprintf(w, "%s  %-17s  %-9s  %3d msgs  %-14s  %s\n",
		c.ID, c.AgentName, c.Status, len(c.Messages), humanize.Time(c.UpdatedAt), preview)
}

func writeConversation(w io.Writer, c model.Conversation) {
	fmt.Fprintf(w, "%s (%s) %s, updated %s\n", c.ID, c.AgentName, c.Status, humanize.Time(c.UpdatedAt))
	for k, v := range c.Metadata {
		fmt.Fprintf(w, "  %s=%s\n", k, v)
	}
	for _, m := range c.Messages {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, m.Content)
	}
}
