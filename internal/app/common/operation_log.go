package common

import (
	"context"
	"time"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
)

// Record writes one operation log entry for a finished action. Logging
// failures are reported on the console and never replace err.
func (s *Session) Record(ctx context.Context, command, action, target string, start time.Time, err error) {
	if s.OpLog == nil {
		return
	}
	entry := model.OperationLogEntry{
		Timestamp:  time.Now().UTC(),
		OpID:       s.OpID,
		Command:    command,
		Action:     action,
		Target:     target,
		Result:     "success",
		DurationMS: time.Since(start).Milliseconds(),
		DryRun:     s.Options.DryRun,
		UserID:     s.Caller.UID,
	}
	if s.Options.DryRun {
		entry.Result = "planned"
	}
	if err != nil {
		entry.Result = "failed"
		if k := failure.KindOf(err); k != "" {
			entry.Result = string(k)
		}
		entry.Error = err.Error()
	}
	if logErr := s.OpLog.Log(ctx, entry); logErr != nil && s.Log != nil {
		s.Log.Warn("failed to write operation log", "err", logErr)
	}
}
