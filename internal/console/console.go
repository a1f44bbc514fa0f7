package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/bot"
	"github.com/spigell/peermatch/internal/logger"
)

const (
	PromptReply = "⌨ Type a reply"
	PromptQuit  = "/quit"
)

// Handler is the bot core the console talks to.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) ([]bot.Message, error)
}

// Terminal reads free text and button selections from the person at the keyboard.
type Terminal interface {
	ReadLine(label string) (string, error)
	// Choose returns the index of the selected item.
	Choose(label string, items []string) (int, error)
}

// Console relays one person's terminal input to the bot and prints replies.
type Console struct {
	handler  Handler
	terminal Terminal
	out      io.Writer
	personID int64
	username string
	logger   *zap.Logger
}

func New(handler Handler, terminal Terminal, out io.Writer, personID int64, username string, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{
		handler:  handler,
		terminal: terminal,
		out:      out,
		personID: personID,
		username: username,
		logger:   logger.WithFields(log, logger.PersonFields(personID, "")...),
	}
}

// Run reads until the person quits, input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := c.terminal.ReadLine(fmt.Sprintf("%s>", c.username))
		if isExit(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == PromptQuit {
			return nil
		}

		if err := c.dispatch(ctx, bot.ParseInput(c.personID, c.username, line)); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

var errQuit = errors.New("quit requested")

// dispatch sends ev and keeps offering the returned buttons until the
// person goes back to typing.
func (c *Console) dispatch(ctx context.Context, ev bot.Event) error {
	for {
		msgs, err := c.handler.Handle(ctx, ev)
		if err != nil {
			return fmt.Errorf("handle event: %w", err)
		}
		c.print(msgs)

		buttons := collectButtons(msgs)
		if len(buttons) == 0 {
			return nil
		}

		items := make([]string, 0, len(buttons)+1)
		for _, b := range buttons {
			items = append(items, b.Text)
		}
		items = append(items, PromptReply)

		idx, err := c.terminal.Choose("Choose an action and press ENTER", items)
		if isExit(err) {
			return errQuit
		}
		if err != nil {
			return fmt.Errorf("choose action: %w", err)
		}
		if idx < 0 || idx >= len(buttons) {
			return nil
		}

		c.logger.Debug("button selected", zap.String("token", buttons[idx].Token))
		ev = bot.ButtonPress(c.personID, c.username, buttons[idx].Token)
	}
}

func (c *Console) print(msgs []bot.Message) {
	for _, m := range msgs {
		if m.Notice != "" {
			fmt.Fprintf(c.out, "[%s]\n", m.Notice)
		}
		if m.Text != "" {
			fmt.Fprintln(c.out, m.Text)
		}
	}
}

func collectButtons(msgs []bot.Message) []bot.Button {
	var out []bot.Button
	for _, m := range msgs {
		for _, row := range m.Buttons {
			out = append(out, row...)
		}
	}
	return out
}

func isExit(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, promptui.ErrEOF) ||
		errors.Is(err, promptui.ErrInterrupt)
}

// PromptTerminal is the interactive Terminal backed by promptui.
type PromptTerminal struct{}

func (PromptTerminal) ReadLine(label string) (string, error) {
	p := promptui.Prompt{Label: label}
	return p.Run()
}

func (PromptTerminal) Choose(label string, items []string) (int, error) {
	s := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	idx, _, err := s.Run()
	return idx, err
}

var _ Terminal = PromptTerminal{}
