package segue

import (
	"io"
	"log/slog"
)

// nopLogger discards everything. Used wherever a logger was not configured
// so call sites never nil-check.
var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
