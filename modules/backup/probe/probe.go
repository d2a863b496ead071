// Package probe checks that configured servers and databases are reachable
// without transferring any data.
package probe

import (
	"context"
	"fmt"
	"strings"

	"backup-master/interfaces"
	"backup-master/modules/backend/exec_cmd"
	"backup-master/modules/backup/dump"
	"backup-master/modules/backup/faults"
)

// Endpoint connects, lists root and disconnects. It returns number of root entries.
func Endpoint(ctx context.Context, ep interfaces.Endpoint, address, root string) (int, error) {

	defer func() { _ = ep.Close() }()

	if err := ep.Connect(ctx); err != nil {
		return 0, &faults.ConnectError{Address: address, Err: err}
	}

	items, err := ep.ListDirectory(root)
	if err != nil {
		return 0, &faults.ListError{Path: root, Err: err}
	}

	return len(items), nil
}

// Database resolves dump tool of the target, reads its version and pings the database
func Database(d *dump.Dumper, t dump.Target) (string, error) {

	tool := dump.Tool(t.Kind)
	if tool == "" {
		return "", fmt.Errorf("unsupported database kind `%s`", t.Kind)
	}
	if _, err := exec_cmd.Lookup(tool); err != nil {
		return "", &faults.ToolingMissingError{Tool: tool, Err: err}
	}

	res, err := exec_cmd.Exec(tool, "--version")
	if err != nil {
		return "", fmt.Errorf("`%s --version` failed: %w: %s", tool, err, res.Stderr)
	}
	version := strings.TrimSpace(res.Stdout)

	if err = d.Probe(t); err != nil {
		return version, fmt.Errorf("database `%s` unreachable: %w", t, err)
	}

	return version, nil
}
