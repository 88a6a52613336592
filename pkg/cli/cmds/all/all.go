package all

import (
	// Import all commands.
	_ "github.com/robotalks/serline/pkg/cli/cmds/board"
	_ "github.com/robotalks/serline/pkg/cli/cmds/reg"
)
