package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Console chats with a single local user over line-oriented streams.
type Console struct {
	agent    Agent
	commands *Commands
	userID   string
	name     string
	in       io.Reader
	out      io.Writer
}

// NewConsole creates a console session for userID.
func NewConsole(agent Agent, commands *Commands, userID, name string, in io.Reader, out io.Writer) *Console {
	if commands == nil {
		commands = NewCommands(agent, nil)
	}
	return &Console{agent: agent, commands: commands, userID: userID, name: name, in: in, out: out}
}

// Run reads messages until EOF, "exit"/"quit", or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, c.commands.Start(c.userID, c.name))
	fmt.Fprintln(c.out, `Type "exit" to quit.`)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, ok := c.commands.Handle(c.userID, c.name, line)
		if !ok {
			reply = c.agent.ProcessMessage(ctx, c.userID, line)
		}
		fmt.Fprintf(c.out, "\n%s\n\n", reply)
	}
}
