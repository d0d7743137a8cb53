package chat

import (
	"context"
	"fmt"
	"io"

	"chatwire/pkg/channel"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Client is the REST channel client the console talks through.
type Client interface {
	Stream(ctx context.Context, senderID, text string, fn func(channel.Fragment) error) error
}

// RuntimeInfo is shown in the console header.
type RuntimeInfo struct {
	URL      string
	SenderID string
}

func RunInteractive(ctx context.Context, client Client, info RuntimeInfo) error {
	program := tea.NewProgram(newModel(ctx, client, info), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

// PrintFragments writes a batch reply as plain text, numbering buttons the way the
// console does.
func PrintFragments(w io.Writer, fragments []channel.Fragment) error {
	for _, fragment := range fragments {
		if body := renderFragment(fragment); body != "" {
			if _, err := fmt.Fprintln(w, body); err != nil {
				return err
			}
		}
		if len(fragment.Buttons) > 0 {
			if _, err := fmt.Fprintln(w, renderButtons(fragment.Buttons)); err != nil {
				return err
			}
		}
	}

	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("24")).
		Padding(1, 2)

	return style.Render("👋 Chat session closed")
}
