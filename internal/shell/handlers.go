// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"github.com/jeranaias/davsh/internal/commands"
)

// handlerTable maps every canonical command to its handler. New refuses
// to start if an entry is missing.
func handlerTable() map[commands.Name]Handler {
	return map[commands.Name]Handler{
		commands.Cat:       cmdCat,
		commands.Cd:        cmdCd,
		commands.Copy:      cmdCopy,
		commands.Delete:    cmdDelete,
		commands.Edit:      cmdEdit,
		commands.Get:       cmdGet,
		commands.Help:      cmdHelp,
		commands.Lcd:       cmdLcd,
		commands.Lls:       cmdLls,
		commands.Lock:      cmdLock,
		commands.Lpwd:      cmdLpwd,
		commands.Ls:        cmdLs,
		commands.Mkcol:     cmdMkcol,
		commands.Move:      cmdMove,
		commands.Open:      cmdOpen,
		commands.Options:   cmdOptions,
		commands.Propfind:  cmdPropfind,
		commands.Put:       cmdPut,
		commands.Pwd:       cmdPwd,
		commands.Quit:      cmdQuit,
		commands.Set:       cmdSet,
		commands.Sh:        cmdSh,
		commands.Showlocks: cmdShowlocks,
		commands.Steal:     cmdSteal,
		commands.Unlock:    cmdUnlock,
		commands.Unset:     cmdUnset,
	}
}
