package feedback

import (
	"context"
	"strings"
)

// ListerMover extends the transport with the operations the poll loop needs.
type ListerMover interface {
	List(ctx context.Context, folder string) ([]string, error)
	Move(ctx context.Context, fromFolder, toFolder, name string) error
}

// Poll drains the feedback folder: acknowledgements and feedback files are
// processed and shelved, anything else is left in place for inspection. A
// file that fails stays put so the next poll retries it.
func (s *Service) Poll(ctx context.Context, transport ListerMover, processedFolder string) error {
	names, err := transport.List(ctx, s.cfg.FeedbackFolder)
	if err != nil {
		return err
	}

	for _, name := range names {
		upper := strings.ToUpper(name)
		var err error
		switch {
		case strings.Contains(upper, "ACK"):
			err = s.ProcessAck(ctx, name)
		case strings.Contains(upper, "FEEDBACK"):
			err = s.ProcessFeedback(ctx, name)
		default:
			s.log.Warn("unrecognized file in feedback folder, leaving in place", "file_name", name)
			continue
		}
		if err != nil {
			s.log.Error("feedback file failed, will retry next poll", "file_name", name, "error", err)
			continue
		}
		if err := transport.Move(ctx, s.cfg.FeedbackFolder, processedFolder, name); err != nil {
			s.log.Error("failed to shelve processed feedback file", "file_name", name, "error", err)
		}
	}
	return nil
}
