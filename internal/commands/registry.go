// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownCommand is returned by Resolve for tokens that name no command.
var ErrUnknownCommand = errors.New("unrecognised command")

// =============================================================================
// COMMAND NAMES
// =============================================================================

// Name is the canonical name of a shell command.
type Name string

const (
	Cd        Name = "cd"
	Cat       Name = "cat"
	Copy      Name = "copy"
	Delete    Name = "delete"
	Edit      Name = "edit"
	Get       Name = "get"
	Help      Name = "help"
	Lcd       Name = "lcd"
	Lls       Name = "lls"
	Ls        Name = "ls"
	Lpwd      Name = "lpwd"
	Lock      Name = "lock"
	Mkcol     Name = "mkcol"
	Move      Name = "move"
	Open      Name = "open"
	Options   Name = "options"
	Propfind  Name = "propfind"
	Put       Name = "put"
	Pwd       Name = "pwd"
	Quit      Name = "quit"
	Set       Name = "set"
	Sh        Name = "sh"
	Showlocks Name = "showlocks"
	Steal     Name = "steal"
	Unlock    Name = "unlock"
	Unset     Name = "unset"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command describes one canonical command.
type Command struct {
	// Name is the canonical command name
	Name Name

	// Aliases are alternative spellings that resolve to Name
	Aliases []string

	// Usage shows argument syntax (e.g., "get <remote> [local]")
	Usage string

	// MinArgs and MaxArgs bound the argument count; MaxArgs < 0 means unbounded
	MinArgs int
	MaxArgs int
}

// builtins is the closed set of commands the shell understands.
var builtins = []Command{
	{Name: Cd, Aliases: []string{"chdir"}, Usage: "cd [collection]", MaxArgs: 1},
	{Name: Cat, Aliases: []string{"less", "more", "type"}, Usage: "cat <resource>", MinArgs: 1, MaxArgs: 1},
	{Name: Copy, Aliases: []string{"cp"}, Usage: "copy <source> <destination>", MinArgs: 2, MaxArgs: 2},
	{Name: Delete, Aliases: []string{"rm", "del"}, Usage: "delete <resource>...", MinArgs: 1, MaxArgs: -1},
	{Name: Edit, Aliases: []string{"vi", "vim"}, Usage: "edit <resource>", MinArgs: 1, MaxArgs: 1},
	{Name: Get, Aliases: []string{"download"}, Usage: "get <remote> [local]", MinArgs: 1, MaxArgs: 2},
	{Name: Help, Aliases: []string{"h", "?"}, Usage: "help [-s] [command]", MaxArgs: 2},
	{Name: Lcd, Aliases: []string{"lchdir"}, Usage: "lcd [directory]", MaxArgs: 1},
	{Name: Lls, Aliases: []string{"ldir"}, Usage: "lls [directory]", MaxArgs: 1},
	{Name: Ls, Aliases: []string{"dir", "list"}, Usage: "ls [collection]", MaxArgs: 1},
	{Name: Lpwd, Usage: "lpwd", MaxArgs: 0},
	{Name: Lock, Usage: "lock [resource] [timeout] [depth]", MaxArgs: 3},
	{Name: Mkcol, Aliases: []string{"mkdir"}, Usage: "mkcol <collection>...", MinArgs: 1, MaxArgs: -1},
	{Name: Move, Aliases: []string{"mv", "rename"}, Usage: "move <source> <destination>", MinArgs: 2, MaxArgs: 2},
	{Name: Open, Aliases: []string{"connect"}, Usage: "open <url>", MinArgs: 1, MaxArgs: 1},
	{Name: Options, Usage: "options [resource]", MaxArgs: 1},
	{Name: Propfind, Aliases: []string{"props", "propget"}, Usage: "propfind [-a] [resource]", MaxArgs: 2},
	{Name: Put, Aliases: []string{"upload"}, Usage: "put <local> [remote]", MinArgs: 1, MaxArgs: 2},
	{Name: Pwd, Usage: "pwd", MaxArgs: 0},
	{Name: Quit, Aliases: []string{"q", "exit", "bye"}, Usage: "quit", MaxArgs: 0},
	{Name: Set, Aliases: []string{"proppatch"}, Usage: "set <resource> <name> <value> [namespace]", MinArgs: 3, MaxArgs: 4},
	{Name: Sh, Aliases: []string{"!", "shell"}, Usage: "sh <command>...", MinArgs: 1, MaxArgs: -1},
	{Name: Showlocks, Aliases: []string{"locks"}, Usage: "showlocks", MaxArgs: 0},
	{Name: Steal, Usage: "steal <resource>", MinArgs: 1, MaxArgs: 1},
	{Name: Unlock, Usage: "unlock <resource>", MinArgs: 1, MaxArgs: 1},
	{Name: Unset, Aliases: []string{"rmprop"}, Usage: "unset <resource> <name> [namespace]", MinArgs: 2, MaxArgs: 3},
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

var (
	byName  = make(map[Name]*Command, len(builtins))
	byAlias = make(map[string]*Command)
)

func init() {
	for i := range builtins {
		cmd := &builtins[i]
		if _, dup := byName[cmd.Name]; dup {
			panic(fmt.Sprintf("commands: duplicate command %q", cmd.Name))
		}
		byName[cmd.Name] = cmd
	}
	for i := range builtins {
		cmd := &builtins[i]
		for _, alias := range cmd.Aliases {
			alias = strings.ToLower(alias)
			if _, clash := byName[Name(alias)]; clash {
				panic(fmt.Sprintf("commands: alias %q shadows a command", alias))
			}
			if prev, dup := byAlias[alias]; dup {
				panic(fmt.Sprintf("commands: alias %q maps to both %q and %q", alias, prev.Name, cmd.Name))
			}
			byAlias[alias] = cmd
		}
	}
}

// Resolve maps a token (command or alias, any case) to its command.
func Resolve(token string) (*Command, error) {
	key := strings.ToLower(strings.TrimSpace(token))
	if cmd, ok := byName[Name(key)]; ok {
		return cmd, nil
	}
	if cmd, ok := byAlias[key]; ok {
		return cmd, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, token)
}

// Lookup returns the command with the given canonical name.
func Lookup(name Name) (*Command, bool) {
	cmd, ok := byName[name]
	return cmd, ok
}

// All returns every canonical command sorted by name.
func All() []*Command {
	cmds := make([]*Command, 0, len(builtins))
	for i := range builtins {
		cmds = append(cmds, &builtins[i])
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Names returns every canonical command name sorted alphabetically.
func Names() []Name {
	all := All()
	names := make([]Name, len(all))
	for i, cmd := range all {
		names[i] = cmd.Name
	}
	return names
}

// CheckArgs reports whether n arguments are acceptable for the command.
func (c *Command) CheckArgs(n int) bool {
	if n < c.MinArgs {
		return false
	}
	return c.MaxArgs < 0 || n <= c.MaxArgs
}
